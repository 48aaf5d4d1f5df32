// internal/scenario/script.go

// Package scenario runs YAML scenario scripts against execution contexts.
// Each script is one execution unit: hooks acquire the unit's context before
// the first step and release it after the last, with a failure screenshot in
// between when a step fails.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/interact"
	"github.com/xkilldash9x/uiharness/internal/browser/wait"
)

// ErrExpectationFailed marks a step whose assertion did not hold.
var ErrExpectationFailed = errors.New("expectation failed")

// Script is a named, ordered list of steps.
type Script struct {
	Name    string `yaml:"name" validate:"required"`
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Steps   []Step `yaml:"steps" validate:"required,min=1,dive"`

	// Path is the file the script was loaded from, if any.
	Path string `yaml:"-"`
}

// Step holds exactly one action or expectation.
type Step struct {
	Navigate         string         `yaml:"navigate,omitempty"`
	Click            string         `yaml:"click,omitempty"`
	Type             *TypeStep      `yaml:"type,omitempty"`
	TypeSequentially *TypeStep      `yaml:"type_sequentially,omitempty"`
	Wait             *WaitStep      `yaml:"wait,omitempty"`
	WaitLoad         string         `yaml:"wait_load,omitempty" validate:"omitempty,oneof=load networkidle"`
	WaitURL          string         `yaml:"wait_url,omitempty"`
	ExpectText       *ExpectText    `yaml:"expect_text,omitempty"`
	ExpectVisible    *ExpectVisible `yaml:"expect_visible,omitempty"`
}

// TypeStep writes Text into the field at Selector.
type TypeStep struct {
	Selector string `yaml:"selector" validate:"required"`
	Text     string `yaml:"text"`
}

// WaitStep blocks until Selector reaches State (visible when empty).
type WaitStep struct {
	Selector string `yaml:"selector" validate:"required"`
	State    string `yaml:"state,omitempty" validate:"omitempty,oneof=visible hidden attached detached"`
}

// ExpectText compares an element's rendered text. Exactly one of Equals or
// Contains is set.
type ExpectText struct {
	Selector string  `yaml:"selector" validate:"required"`
	Equals   *string `yaml:"equals,omitempty"`
	Contains string  `yaml:"contains,omitempty"`
}

// ExpectVisible checks an element's visibility; Visible defaults to true.
type ExpectVisible struct {
	Selector string `yaml:"selector" validate:"required"`
	Visible  *bool  `yaml:"visible,omitempty"`
}

// Kind names the step's action.
func (s Step) Kind() string {
	kinds := s.kinds()
	if len(kinds) != 1 {
		return "invalid"
	}
	return kinds[0]
}

func (s Step) kinds() []string {
	var kinds []string
	add := func(set bool, kind string) {
		if set {
			kinds = append(kinds, kind)
		}
	}
	add(s.Navigate != "", "navigate")
	add(s.Click != "", "click")
	add(s.Type != nil, "type")
	add(s.TypeSequentially != nil, "type_sequentially")
	add(s.Wait != nil, "wait")
	add(s.WaitLoad != "", "wait_load")
	add(s.WaitURL != "", "wait_url")
	add(s.ExpectText != nil, "expect_text")
	add(s.ExpectVisible != nil, "expect_visible")
	return kinds
}

// String renders the step for logs and results.
func (s Step) String() string {
	switch s.Kind() {
	case "navigate":
		return "navigate " + s.Navigate
	case "click":
		return "click " + s.Click
	case "type":
		return "type into " + s.Type.Selector
	case "type_sequentially":
		return "type sequentially into " + s.TypeSequentially.Selector
	case "wait":
		return fmt.Sprintf("wait for %s %s", s.Wait.Selector, s.waitState())
	case "wait_load":
		return "wait for " + s.WaitLoad
	case "wait_url":
		return "wait for url " + s.WaitURL
	case "expect_text":
		return "expect text of " + s.ExpectText.Selector
	case "expect_visible":
		return "expect visibility of " + s.ExpectVisible.Selector
	}
	return "invalid step"
}

func (s Step) waitState() browser.ElementState {
	if s.Wait.State == "" {
		return browser.StateVisible
	}
	return browser.ElementState(s.Wait.State)
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterStructValidation(func(sl validator.StructLevel) {
			step := sl.Current().Interface().(Step)
			if len(step.kinds()) != 1 {
				sl.ReportError(step, "step", "Step", "one_action", "")
			}
		}, Step{})
		v.RegisterStructValidation(func(sl validator.StructLevel) {
			et := sl.Current().Interface().(ExpectText)
			if (et.Equals != nil) == (et.Contains != "") {
				sl.ReportError(et.Contains, "contains", "Contains", "equals_xor_contains", "")
			}
		}, ExpectText{})
		validateInst = v
	})
	return validateInst
}

// Validate checks that the script has a name, at least one step, and that
// every step holds exactly one well-formed action.
func (s *Script) Validate() error {
	err := validatorInstance().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid script %q: %s", s.Name, strings.Join(msgs, "; "))
}

// ParseScript decodes and validates a script. Unknown keys are rejected.
func ParseScript(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScript reads and parses the script at path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// resolve makes a navigate target absolute against base.
func resolve(base, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid navigate target %q: %w", target, err)
	}
	if u.IsAbs() {
		return target, nil
	}
	if base == "" {
		return "", fmt.Errorf("relative navigate target %q needs a base_url", target)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base_url %q: %w", base, err)
	}
	return b.ResolveReference(u).String(), nil
}

// Run executes the steps in order and stops at the first failure. It returns
// the 1-based index of the failed step, or 0 when every step passed.
// defaultBase is used when the script sets no base_url.
func (s *Script) Run(ctx context.Context, ui interact.Actions, defaultBase string) (int, error) {
	base := s.BaseURL
	if base == "" {
		base = defaultBase
	}
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return i + 1, err
		}
		if err := step.run(ctx, ui, base); err != nil {
			return i + 1, fmt.Errorf("step %d (%s): %w", i+1, step, err)
		}
	}
	return 0, nil
}

func (s Step) run(ctx context.Context, ui interact.Actions, base string) error {
	switch s.Kind() {
	case "navigate":
		target, err := resolve(base, s.Navigate)
		if err != nil {
			return err
		}
		return ui.Navigate(ctx, target)
	case "click":
		return ui.Click(ctx, s.Click)
	case "type":
		return ui.Type(ctx, s.Type.Selector, s.Type.Text)
	case "type_sequentially":
		return ui.TypeSequentially(ctx, s.TypeSequentially.Selector, s.TypeSequentially.Text)
	case "wait":
		return ui.WaitFor(ctx, s.Wait.Selector, s.waitState())
	case "wait_load":
		if s.WaitLoad == "networkidle" {
			return ui.WaitForPage(ctx, wait.NetworkIdle())
		}
		return ui.WaitForPage(ctx, wait.Loaded())
	case "wait_url":
		return ui.WaitForPage(ctx, wait.URLContains(s.WaitURL))
	case "expect_text":
		return s.ExpectText.check(ctx, ui)
	case "expect_visible":
		return s.ExpectVisible.check(ctx, ui)
	}
	return fmt.Errorf("step holds %d actions, want exactly one", len(s.kinds()))
}

func (e *ExpectText) check(ctx context.Context, ui interact.Actions) error {
	got, err := ui.ReadText(ctx, e.Selector)
	if err != nil {
		return err
	}
	got = strings.TrimSpace(got)
	if e.Equals != nil {
		if got != *e.Equals {
			return fmt.Errorf("%w: text of %s is %q, want %q", ErrExpectationFailed, e.Selector, got, *e.Equals)
		}
		return nil
	}
	if !strings.Contains(got, e.Contains) {
		return fmt.Errorf("%w: text of %s is %q, want it to contain %q", ErrExpectationFailed, e.Selector, got, e.Contains)
	}
	return nil
}

// check waits for the wanted visibility, so expectations tolerate the same
// rendering delays actions do.
func (e *ExpectVisible) check(ctx context.Context, ui interact.Actions) error {
	want := e.Visible == nil || *e.Visible
	state := browser.StateVisible
	if !want {
		state = browser.StateHidden
	}
	err := ui.WaitFor(ctx, e.Selector, state)
	var te *browser.TimeoutError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %s visible=%t never held: %w", ErrExpectationFailed, e.Selector, want, err)
	}
	return err
}
