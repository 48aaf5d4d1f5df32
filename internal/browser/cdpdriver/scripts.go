package cdpdriver

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/uiharness/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// invoke renders a call of the JS function fn with JSON-encoded args.
func invoke(fn string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encoding script argument: %w", err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(encoded, ", ")), nil
}

// jsVisible matches playwright's notion of visibility: rendered, non-empty
// box and not visibility:hidden.
const jsVisible = `function isVisible(el) {
	if (!el || !el.isConnected) return false;
	const style = getComputedStyle(el);
	if (style.visibility === 'hidden' || style.display === 'none') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`

// stateScripts are polled until they return true.
var stateScripts = map[browser.ElementState]string{
	browser.StateVisible:  `(sel) => { ` + jsVisible + ` return isVisible(document.querySelector(sel)); }`,
	browser.StateHidden:   `(sel) => { ` + jsVisible + ` return !isVisible(document.querySelector(sel)); }`,
	browser.StateAttached: `(sel) => document.querySelector(sel) !== null`,
	browser.StateDetached: `(sel) => document.querySelector(sel) === null`,
}

const (
	jsLoaded = `() => document.readyState === 'complete'`

	// jsNetworkIdle holds once the page is loaded and no new resource entry
	// has appeared for 500ms.
	jsNetworkIdle = `() => {
	if (document.readyState !== 'complete') return false;
	const n = performance.getEntriesByType('resource').length;
	const now = Date.now();
	const s = window.__uiharnessIdle;
	if (!s || s.n !== n) { window.__uiharnessIdle = { n, t: now }; return false; }
	return now - s.t >= 500;
}`

	jsURLContains = `(s) => location.href.includes(s)`

	jsIsVisible = `(sel) => { ` + jsVisible + ` return isVisible(document.querySelector(sel)); }`

	// jsHitTest reports whether a click at the element's centre would land on it.
	jsHitTest = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return 'missing';
	el.scrollIntoView({ block: 'center', inline: 'center' });
	const r = el.getBoundingClientRect();
	const top = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
	return top && (top === el || el.contains(top)) ? 'ok' : 'obscured';
}`

	// jsSetValue uses the native setter so framework-controlled inputs see the change.
	jsSetValue = `(sel, value) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.focus();
	const proto = Object.getPrototypeOf(el);
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`

	jsInnerText = `(sel) => { const el = document.querySelector(sel); return el ? el.innerText : null; }`

	jsInputValue = `(sel) => { const el = document.querySelector(sel); return el && 'value' in el ? String(el.value) : null; }`
)
