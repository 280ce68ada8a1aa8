package site

import (
	"encoding/json"
	"fmt"
)

// call renders a JS function applied to JSON-encoded arguments.
func call(fn string, args ...any) (string, error) {
	enc := make([]byte, 0, 64)
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument %d: %w", i, err)
		}
		if i > 0 {
			enc = append(enc, ',')
		}
		enc = append(enc, b...)
	}
	return fmt.Sprintf("(%s)(%s)", fn, enc), nil
}

const bodyTextJS = `document.body ? document.body.innerText : ""`

// fillPINJS sets the PIN, then removes cookie banners and accepts consent.
// Returns whether the PIN input exists.
const fillPINJS = `(sel, pin) => {
	const inp = document.querySelector(sel);
	if (inp) {
		inp.value = pin;
		inp.dispatchEvent(new Event('input', {bubbles: true}));
		inp.dispatchEvent(new Event('change', {bubbles: true}));
	}
	document.querySelectorAll(
		'[class*="cookie"],[class*="consent"],[id*="cookie"],[id*="consent"],' +
		'[class*="Cookie"],[class*="Consent"],.cc-window,.cc-banner,#onetrust-banner-sdk'
	).forEach(el => el.remove());
	for (const b of document.querySelectorAll('button, a.btn, a[role="button"]')) {
		const t = b.textContent.trim().toLowerCase();
		if (['aceptar', 'accept', 'aceitar', 'accept all', 'aceptar todo'].includes(t)) {
			b.click();
			break;
		}
	}
	return !!inp;
}`

// stateJS reports whether sel exists and is enabled.
const stateJS = `(sel) => {
	const el = document.querySelector(sel);
	return {found: !!el, enabled: !!el && !el.disabled && !el.hasAttribute('disabled')};
}`

type elementState struct {
	Found   bool `json:"found"`
	Enabled bool `json:"enabled"`
}

// clickJS clicks the first element matching sel, enabling it first.
const clickJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.removeAttribute('disabled');
	el.click();
	return true;
}`

// detailsShownJS checks that the details card holds the account id input.
const detailsShownJS = `(card, account) => {
	const c = document.querySelector(card);
	return !!c && !!c.querySelector(account);
}`

type fillArgs struct {
	Name       string `json:"name"`
	Born       string `json:"born"`
	PlayerID   string `json:"playerId"`
	Country    string `json:"country"`
	NameSel    string `json:"nameSel"`
	BornSel    string `json:"bornSel"`
	AccountSel string `json:"accountSel"`
	CountrySel string `json:"countrySel"`
	Checkboxes string `json:"checkboxes"`
	Buttons    string `json:"buttons"`
}

type fillResult struct {
	Fields  bool `json:"fields"`
	Country bool `json:"country"`
}

// fillDetailsJS fills the text fields, picks the country by option text
// (falling back to the first non-empty option), clears the consent boxes,
// enables the action buttons and removes overlays outside the form card.
const fillDetailsJS = `(a) => {
	const r = {fields: false, country: false};
	const set = (el, v) => {
		if (!el) return;
		el.value = v;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
	};
	const nameEl = document.querySelector(a.nameSel);
	const bornEl = document.querySelector(a.bornSel);
	const idEl = document.querySelector(a.accountSel);
	set(nameEl, a.name); set(bornEl, a.born); set(idEl, a.playerId);
	r.fields = !!(nameEl && bornEl && idEl);

	const sel = document.querySelector(a.countrySel);
	if (sel && sel.options.length > 1) {
		const pick = (opt) => {
			sel.value = opt.value;
			sel.dispatchEvent(new Event('change', {bubbles: true}));
			r.country = true;
		};
		for (const opt of sel.options) {
			if (opt.text.toLowerCase().includes(a.country)) { pick(opt); break; }
		}
		if (!r.country) {
			for (const opt of sel.options) {
				if (opt.value) { pick(opt); break; }
			}
		}
	}

	document.querySelectorAll(a.checkboxes).forEach(cb => { cb.checked = false; });
	document.querySelectorAll(a.buttons).forEach(b => b.removeAttribute('disabled'));
	document.querySelectorAll('[class*="overlay"],[class*="backdrop"],[class*="modal"]').forEach(el => {
		if (!el.closest('.card') && !el.closest('form')) el.remove();
	});
	return r;
}`

// countryValueJS returns the option value for the country, or "" when the
// select has no usable option yet.
const countryValueJS = `(sel, country) => {
	const el = document.querySelector(sel);
	if (!el || el.options.length < 2) return "";
	for (const opt of el.options) {
		if (opt.text.toLowerCase().includes(country)) return opt.value;
	}
	for (const opt of el.options) {
		if (opt.value) return opt.value;
	}
	return "";
}`

// selectValueJS selects value on sel and fires change.
const selectValueJS = `(sel, value) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.value = value;
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

// checkAllJS ticks every checkbox through a click so the page's handlers run,
// trying the label when the box itself does not toggle. Returns the number of
// boxes left unchecked.
const checkAllJS = `(sel) => {
	let missed = 0;
	document.querySelectorAll(sel).forEach(cb => {
		if (!cb.checked) cb.click();
		if (!cb.checked && cb.id) {
			const label = document.querySelector('label[for="' + CSS.escape(cb.id) + '"]');
			if (label) label.click();
		}
		if (!cb.checked) {
			cb.checked = true;
			cb.dispatchEvent(new Event('change', {bubbles: true}));
		}
		if (!cb.checked) missed++;
	});
	return missed;
}`

// submitFormJS submits the first form matching sel directly.
const submitFormJS = `(sel) => {
	const f = document.querySelector(sel);
	if (!f) return false;
	f.submit();
	return true;
}`
