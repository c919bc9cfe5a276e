// Package pageadapter adapts a live playwright.Page to the narrow
// interfaces the DOM Action Executor (C3) and AI-Assist's stub executor
// (C5) need, so those packages stay free of any Playwright dependency
// and testable against fakes.
package pageadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/polzovatel/browser-orchestrator/internal/domanalysis"
	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// Actuator adapts playwright.Page to domexec.Actuator.
type Actuator struct {
	page playwright.Page
}

// NewActuator builds an Actuator around page.
func NewActuator(page playwright.Page) *Actuator {
	return &Actuator{page: page}
}

func (a *Actuator) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.page.Click(selector)
}

func (a *Actuator) Fill(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.page.Fill(selector, text)
}

func (a *Actuator) SelectOption(ctx context.Context, selector, labelOrValue string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	values := []string{labelOrValue}
	_, err := a.page.SelectOption(selector, playwright.SelectOptionValues{Values: &values})
	return err
}

func (a *Actuator) WaitForLoadState(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := float64(timeout.Milliseconds())
	return a.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{Timeout: &ms})
}

// Locator adapts playwright.Page into aiassist's domLocator contract:
// locate a target by free-form description via a fresh DOM analysis,
// act on the located selector, and read text back.
type Locator struct {
	page playwright.Page
}

// NewLocator builds a Locator around page.
func NewLocator(page playwright.Page) *Locator {
	return &Locator{page: page}
}

// Locate re-analyzes the current page and returns the best-matching
// interactive element's selector for target.
func (l *Locator) Locate(ctx context.Context, target string) (string, float64, bool) {
	analysis, err := domanalysis.Analyze(ctx, l.page)
	if err != nil {
		return "", 0, false
	}
	best, ok := bestMatch(analysis.Interactive, target)
	if !ok {
		return "", 0, false
	}
	return best.Selector, best.Confidence, true
}

// Act performs one DOM action against selector.
func (l *Locator) Act(ctx context.Context, actionType model.ActionType, selector string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch actionType {
	case model.ActionTypeText:
		text, _ := data["text"].(string)
		return l.page.Fill(selector, text)
	case model.ActionSelect:
		value, _ := data["value"].(string)
		values := []string{value}
		_, err := l.page.SelectOption(selector, playwright.SelectOptionValues{Values: &values})
		return err
	case model.ActionClear:
		return l.page.Fill(selector, "")
	default:
		return l.page.Click(selector)
	}
}

// Read returns selector's inner text.
func (l *Locator) Read(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	locator := l.page.Locator(selector)
	text, err := locator.InnerText()
	if err != nil {
		return "", fmt.Errorf("pageadapter: read %q: %w", selector, err)
	}
	return text, nil
}

// bestMatch picks the highest-confidence element whose text or
// attributes contain target, case-insensitively.
func bestMatch(elements []model.DOMElement, target string) (model.DOMElement, bool) {
	var best model.DOMElement
	found := false
	for _, el := range elements {
		if !elementMatches(el, target) {
			continue
		}
		if !found || el.Confidence > best.Confidence {
			best = el
			found = true
		}
	}
	return best, found
}

func elementMatches(el model.DOMElement, target string) bool {
	if target == "" {
		return false
	}
	haystack := el.Text
	for _, v := range el.Attributes {
		haystack += " " + v
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(target))
}
