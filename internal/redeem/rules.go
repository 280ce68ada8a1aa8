package redeem

import (
	"encoding/json"
	"fmt"
	"strings"

	"pinredeem/internal/config"
	"pinredeem/internal/domain"
)

// Result messages reported to callers.
const (
	MsgRedeemed           = "PIN redeemed successfully"
	MsgPINError           = "PIN error"
	MsgPlayerIDError      = "Player ID error"
	MsgNoDetailsForm      = "Redemption form did not appear after PIN validation"
	MsgSubmitFailed       = "Could not submit the redemption form"
	MsgStillOnForm        = "Redemption not completed: the form is still visible"
	MsgUncertain          = "Uncertain result: redemption was not confirmed"
	MsgTimeout            = "Timed out waiting for the redemption site"
	MsgSiteChanged        = "Redemption site structure changed"
	MsgBrowserUnavailable = "Browser not available"
	MsgInterrupted        = "Browser session interrupted"
	MsgAutomation         = "Automation error"
)

// Rules classifies rendered page text. Every list comes from configuration
// since the phrases belong to the target site, not to this service.
type Rules struct {
	pinError     []keyword
	success      []keyword
	detailsForm  []keyword
	stillOnForm  []keyword
	confirmError []keyword
}

type keyword struct {
	raw   string
	lower string
}

// NewRules prepares keyword lists for case-insensitive matching.
func NewRules(k config.Keywords) Rules {
	return Rules{
		pinError:     prepare(k.PINError),
		success:      prepare(k.Success),
		detailsForm:  prepare(k.DetailsForm),
		stillOnForm:  prepare(k.StillOnForm),
		confirmError: prepare(k.ConfirmError),
	}
}

func prepare(in []string) []keyword {
	out := make([]keyword, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, keyword{raw: s, lower: strings.ToLower(s)})
	}
	return out
}

func firstMatch(text string, kws []keyword) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range kws {
		if strings.Contains(lower, kw.lower) {
			return kw.raw, true
		}
	}
	return "", false
}

// PINError returns the first PIN error phrase found in text.
func (r Rules) PINError(text string) (string, bool) { return firstMatch(text, r.pinError) }

// Success returns the first success phrase found in text.
func (r Rules) Success(text string) (string, bool) { return firstMatch(text, r.success) }

// DetailsForm reports whether text looks like the player details form.
func (r Rules) DetailsForm(text string) bool {
	_, ok := firstMatch(text, r.detailsForm)
	return ok
}

// StillOnForm reports whether the page still shows the redemption form.
func (r Rules) StillOnForm(text string) bool {
	_, ok := firstMatch(text, r.stillOnForm)
	return ok
}

// ConfirmError reports whether a confirmation body mentions an error.
func (r Rules) ConfirmError(body string) bool {
	_, ok := firstMatch(body, r.confirmError)
	return ok
}

// PINErrorResult is the failure reported for a rejected PIN.
func PINErrorResult(kw string) domain.RedemptionResult {
	return domain.Failed(MsgPINError, fmt.Sprintf("The site returned an error related to: '%s'", kw))
}

// Classify decides the final outcome from the page after submitting, together
// with the confirmation response.
func (r Rules) Classify(pageText string, conf Confirmation) domain.RedemptionResult {
	if kw, ok := r.Success(pageText + " " + conf.Body); ok {
		return domain.Succeeded(MsgRedeemed, kw)
	}

	if conf.OK() && conf.Body != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(conf.Body), &obj); err == nil && obj != nil {
			if ok, _ := obj["Success"].(bool); ok {
				return domain.Succeeded(MsgRedeemed, "confirm JSON: "+truncate(conf.Body, 200))
			}
			msg, _ := obj["Message"].(string)
			if msg == "" {
				msg = truncate(conf.Body, 200)
			}
			return domain.Failed("Server error: "+msg, truncate(conf.Body, 300))
		}
		if !r.ConfirmError(conf.Body) {
			return domain.Succeeded(MsgRedeemed, fmt.Sprintf("confirm HTTP %d, body: %s", conf.Status, truncate(conf.Body, 200)))
		}
	}

	if r.StillOnForm(pageText) {
		return domain.Failed(MsgStillOnForm, truncate(pageText, 400))
	}
	return domain.Failed(MsgUncertain, truncate(pageText, 500))
}

// truncate keeps the first n runes of s, trimmed.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return strings.TrimSpace(string(r))
}
