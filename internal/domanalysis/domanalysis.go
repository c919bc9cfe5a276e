// Package domanalysis implements the DOM Analyzer (C2): it extracts
// interactive, form, navigation and content elements from a live page
// and computes per-element and per-page confidence scores.
package domanalysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// Page is the minimal surface domanalysis needs from a browser page,
// satisfied directly by playwright.Page.
type Page interface {
	URL() string
	Title() (string, error)
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

// rawElement mirrors the shape produced by extractionScript.
type rawElement struct {
	Tag        string            `json:"tag"`
	Type       string            `json:"type"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes"`
	XPath      string            `json:"xpath"`
	Selector   string            `json:"selector"`
	Role       string            `json:"role"`
	HasHref    bool              `json:"hasHref"`
}

type rawForm struct {
	Method string   `json:"method"`
	Action string   `json:"action"`
	Fields []string `json:"fields"`
	Types  []string `json:"types"`
}

type rawPage struct {
	Interactive []rawElement `json:"interactive"`
	Forms       []rawForm    `json:"forms"`
	Navigation  []rawElement `json:"navigation"`
	Content     []rawElement `json:"content"`
}

// Analyze navigates nowhere; it assumes the page is already loaded and
// extracts a DOMAnalysis from its current state.
func Analyze(ctx context.Context, page Page) (model.DOMAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return model.DOMAnalysis{}, err
	}
	title, _ := page.Title()
	url := page.URL()

	raw, err := page.Evaluate(extractionScript)
	if err != nil {
		return model.DOMAnalysis{}, fmt.Errorf("dom analyzer: evaluate: %w", err)
	}

	parsed, err := parseRaw(raw)
	if err != nil {
		return model.DOMAnalysis{}, fmt.Errorf("dom analyzer: parse: %w", err)
	}

	interactive := make([]model.DOMElement, 0, len(parsed.Interactive))
	for _, re := range parsed.Interactive {
		interactive = append(interactive, toElement(re, true))
	}
	navigation := make([]model.DOMElement, 0, len(parsed.Navigation))
	for _, re := range parsed.Navigation {
		navigation = append(navigation, toElement(re, false))
	}
	content := make([]model.DOMElement, 0, len(parsed.Content))
	for _, re := range parsed.Content {
		content = append(content, toElement(re, false))
	}
	forms := make([]model.Form, 0, len(parsed.Forms))
	for _, rf := range parsed.Forms {
		fields := make([]model.FormField, 0, len(rf.Fields))
		for i, name := range rf.Fields {
			t := ""
			if i < len(rf.Types) {
				t = rf.Types[i]
			}
			fields = append(fields, model.FormField{Name: name, Type: t})
		}
		forms = append(forms, model.Form{Method: rf.Method, Action: rf.Action, Fields: fields})
	}

	analysis := model.DOMAnalysis{
		URL:               url,
		Title:             title,
		Interactive:       interactive,
		Forms:             forms,
		Navigation:        navigation,
		Content:           content,
		TotalElementCount: len(interactive) + len(navigation) + len(content),
	}
	analysis.AnalysisConfidence = pageConfidence(analysis)
	return analysis, nil
}

// elementConfidence implements the §4.2 per-element confidence formula:
// 0.3 baseline + 0.2 per {id,name,aria-label} present + 0.15 for non-empty
// visible text <= 80 chars + 0.15 for a recognized interactive tag,
// capped at 1.0.
func elementConfidence(re rawElement, interactiveTag bool) float64 {
	c := 0.3
	for _, attr := range []string{"id", "name", "aria-label"} {
		if v, ok := re.Attributes[attr]; ok && strings.TrimSpace(v) != "" {
			c += 0.2
		}
	}
	text := strings.TrimSpace(re.Text)
	if text != "" && len(text) <= 80 {
		c += 0.15
	}
	if interactiveTag {
		c += 0.15
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

func classifyElementType(tag, typ string) model.ElementType {
	tag = strings.ToLower(tag)
	typ = strings.ToLower(typ)
	switch {
	case tag == "a":
		return model.ElementLink
	case tag == "button":
		return model.ElementButton
	case tag == "select":
		return model.ElementSelect
	case tag == "input" && typ == "checkbox":
		return model.ElementCheckbox
	case tag == "input" && typ == "radio":
		return model.ElementRadio
	case tag == "input" || tag == "textarea":
		return model.ElementTextInput
	default:
		return model.ElementOther
	}
}

func toElement(re rawElement, interactive bool) model.DOMElement {
	return model.DOMElement{
		Tag:           re.Tag,
		Text:          re.Text,
		ElementType:   classifyElementType(re.Tag, re.Type),
		Attributes:    re.Attributes,
		XPath:         re.XPath,
		Selector:      re.Selector,
		IsInteractive: interactive,
		Confidence:    elementConfidence(re, interactive),
	}
}

// pageConfidence implements the §4.2 page-confidence formula.
func pageConfidence(a model.DOMAnalysis) float64 {
	interactiveScore := 0.4 * minf(1, float64(len(a.Interactive))/5)
	formScore := 0.0
	if len(a.Forms) > 0 {
		formScore = 0.25
	}
	navScore := 0.15 * minf(1, float64(len(a.Navigation))/3)

	k := len(a.Interactive)
	if k > 10 {
		k = 10
	}
	topK := topKConfidence(a.Interactive, k)
	confScore := 0.2 * topK

	total := interactiveScore + formScore + navScore + confScore
	if total > 1.0 {
		total = 1.0
	}
	if total < 0 {
		total = 0
	}
	return total
}

func topKConfidence(elements []model.DOMElement, k int) float64 {
	if k <= 0 || len(elements) == 0 {
		return 0
	}
	sorted := make([]model.DOMElement, len(elements))
	copy(sorted, elements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	sum := 0.0
	for i := 0; i < k && i < len(sorted); i++ {
		sum += sorted[i].Confidence
	}
	return sum / float64(k)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// FormatForAI renders a deterministic textual summary of an analysis,
// listing the N highest-confidence interactive elements (descending,
// ties broken by original extraction order), the forms present, and the
// overall confidence.
func FormatForAI(a model.DOMAnalysis, limit int) string {
	type indexed struct {
		model.DOMElement
		idx int
	}
	ranked := make([]indexed, len(a.Interactive))
	for i, e := range a.Interactive {
		ranked[i] = indexed{e, i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].idx < ranked[j].idx
	})
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PAGE: %s (%s)\n", a.Title, a.URL)
	fmt.Fprintf(&b, "INTERACTIVE ELEMENTS (%d shown of %d):\n", len(ranked), len(a.Interactive))
	for i, e := range ranked {
		fmt.Fprintf(&b, "%d. [%s] %q selector=%s confidence=%.2f\n", i+1, e.ElementType, e.Text, e.Selector, e.Confidence)
	}
	fmt.Fprintf(&b, "FORMS: %d\n", len(a.Forms))
	for i, f := range a.Forms {
		fmt.Fprintf(&b, "  %d. %s %s fields=%d\n", i+1, strings.ToUpper(f.Method), f.Action, len(f.Fields))
	}
	fmt.Fprintf(&b, "OVERALL CONFIDENCE: %.2f\n", a.AnalysisConfidence)
	return b.String()
}

func parseRaw(v interface{}) (rawPage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return rawPage{}, err
	}
	var out rawPage
	if err := json.Unmarshal(data, &out); err != nil {
		return rawPage{}, err
	}
	return out, nil
}

// extractionScript is evaluated in the page context. It returns a plain
// object matching rawPage, gathering candidate interactive elements
// (button, input, select, textarea, link-with-href, role=button),
// top-level forms, nav-landmark links, and a sample of content text
// nodes for confidence scoring downstream.
const extractionScript = `() => {
  function attrsOf(el) {
    const out = {};
    for (const a of el.attributes) out[a.name] = a.value;
    return out;
  }
  function xpathOf(el) {
    if (el.id) return '//*[@id="' + el.id + '"]';
    const parts = [];
    let node = el;
    while (node && node.nodeType === 1 && node !== document.body) {
      let idx = 1, sib = node.previousElementSibling;
      while (sib) { if (sib.tagName === node.tagName) idx++; sib = sib.previousElementSibling; }
      parts.unshift(node.tagName.toLowerCase() + '[' + idx + ']');
      node = node.parentElement;
    }
    return '/html/body/' + parts.join('/');
  }
  function selectorOf(el) {
    if (el.id) return '#' + el.id;
    if (el.name) return el.tagName.toLowerCase() + '[name="' + el.name + '"]';
    return el.tagName.toLowerCase();
  }
  function textOf(el) {
    return (el.innerText || el.value || el.getAttribute('aria-label') || '').trim().slice(0, 200);
  }
  const interactive = [];
  const sel = "button, input, select, textarea, a[href], [role='button']";
  document.querySelectorAll(sel).forEach(el => {
    interactive.push({
      tag: el.tagName.toLowerCase(),
      type: el.getAttribute('type') || '',
      text: textOf(el),
      attributes: attrsOf(el),
      xpath: xpathOf(el),
      selector: selectorOf(el),
      role: el.getAttribute('role') || '',
      hasHref: el.hasAttribute('href'),
    });
  });
  const navigation = [];
  document.querySelectorAll("nav a[href], [role='navigation'] a[href]").forEach(el => {
    navigation.push({
      tag: el.tagName.toLowerCase(), type: '', text: textOf(el),
      attributes: attrsOf(el), xpath: xpathOf(el), selector: selectorOf(el),
      role: el.getAttribute('role') || '', hasHref: true,
    });
  });
  const forms = [];
  document.querySelectorAll('form').forEach(f => {
    const fields = [], types = [];
    f.querySelectorAll('input, select, textarea').forEach(i => {
      fields.push(i.getAttribute('name') || i.id || '');
      types.push(i.getAttribute('type') || i.tagName.toLowerCase());
    });
    forms.push({ method: f.getAttribute('method') || 'get', action: f.getAttribute('action') || '', fields, types });
  });
  const content = [];
  document.querySelectorAll('p, h1, h2, h3, li').forEach((el, i) => {
    if (i > 100) return;
    content.push({
      tag: el.tagName.toLowerCase(), type: '', text: textOf(el),
      attributes: {}, xpath: '', selector: '', role: '', hasHref: false,
    });
  });
  return { interactive, forms, navigation, content };
}`
