package config

import "time"

// DefaultRedeemURL is the public redemption page the service drives.
const DefaultRedeemURL = "https://redeem.hype.games/"

// DefaultKeywords mirror the phrases the redemption site renders today, in the
// English, Spanish and Portuguese variants of the page.
func DefaultKeywords() Keywords {
	return Keywords{
		PINError: []string{
			"already been redeemed", "already been used",
			"invalid pin", "pin inválido", "pin inv",
			"já foi utilizado", "pin not found",
			"código inválido", "invalid code",
			"pin ya fue", "ya fue canjeado",
			"not valid", "não é válido",
			"já foi resgatado", "expirado", "expired",
		},
		Success: []string{
			"successfully redeemed", "canjeado con éxito",
			"resgatado com sucesso", "congratulations",
			"canjeo exitoso", "fue canjeado",
			"parabéns", "felicidades",
			"your order has been", "pedido foi",
		},
		DetailsForm: []string{
			"nome completo", "nombre completo", "full name",
			"gameaccountid", "id do jogador", "id de usuario",
		},
		StillOnForm: []string{
			"editar dados", "editar datos", "edit data",
			"canjear ahora", "resgatar agora", "redeem now",
			"insira seu pin", "ingrese su pin",
		},
		ConfirmError: []string{
			"error", "erro", "failed", "invalid", "expired",
			"falhou", "falló", "tente novamente", "try again",
		},
	}
}

// DefaultSelectors address the current markup of the redemption form.
func DefaultSelectors() Selectors {
	return Selectors{
		PIN:            "#pininput",
		ValidateButton: "#btn-validate",
		DetailsCard:    ".card.back",
		AccountID:      "#GameAccountId",
		Name:           "#Name",
		BirthDate:      "#BornAt",
		Country:        "#NationalityAlphaCode",
		Checkboxes:     `input[type="checkbox"]`,
		VerifyButton:   "#btn-verify, #btn-verify-account",
		RedeemButton:   "#btn-redeem",
		Form:           "form",
	}
}

// ApplyDefaults fills every zero value with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":5000"
	}
	if cfg.Server.BodyLimit <= 0 {
		cfg.Server.BodyLimit = 64 * 1024
	}

	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.MaxSizeMB <= 0 {
		cfg.Logger.MaxSizeMB = 10
	}
	if cfg.Logger.MaxBackups <= 0 {
		cfg.Logger.MaxBackups = 3
	}
	if cfg.Logger.MaxAgeDays <= 0 {
		cfg.Logger.MaxAgeDays = 7
	}

	b := &cfg.Browser
	if b.MaxSessions == 0 {
		b.MaxSessions = 1
	}
	if b.LaunchTimeout <= 0 {
		b.LaunchTimeout = 20 * time.Second
	}
	if b.AcquireTimeout <= 0 {
		b.AcquireTimeout = 60 * time.Second
	}

	s := &cfg.Site
	if s.URL == "" {
		s.URL = DefaultRedeemURL
	}
	if s.Locale == "" {
		s.Locale = "pt-BR"
	}
	if s.ViewportWidth <= 0 {
		s.ViewportWidth = 1024
	}
	if s.ViewportHeight <= 0 {
		s.ViewportHeight = 600
	}
	if s.BlockedResourceTypes == nil {
		s.BlockedResourceTypes = []string{"image", "font", "media"}
	}
	if s.BlockedDomains == nil {
		s.BlockedDomains = []string{
			"google-analytics.com", "googletagmanager.com",
			"facebook.net", "facebook.com", "fbcdn.net",
			"hotjar.com", "doubleclick.net", "googlesyndication.com",
			"cloudflareinsights.com", "clarity.ms", "connect.facebook.net",
			"analytics.", "adservice.google",
		}
	}
	applySelectorDefaults(&s.Selectors)
	if s.Endpoints.Validate == "" {
		s.Endpoints.Validate = "/validate"
	}
	if s.Endpoints.Account == "" {
		s.Endpoints.Account = "validate/account"
	}
	if s.Endpoints.Confirm == "" {
		s.Endpoints.Confirm = "/confirm"
	}

	t := &s.Timeouts
	if t.Navigation <= 0 {
		t.Navigation = 30 * time.Second
	}
	if t.Response <= 0 {
		t.Response = 30 * time.Second
	}
	if t.Details <= 0 {
		t.Details = 10 * time.Second
	}
	if t.Confirm <= 0 {
		t.Confirm = 10 * time.Second
	}
	if t.SubmitFallback <= 0 {
		t.SubmitFallback = 15 * time.Second
	}
	if t.Element <= 0 {
		t.Element = 2 * time.Second
	}

	if cfg.Redeem.Timeout <= 0 {
		cfg.Redeem.Timeout = 120 * time.Second
	}
	def := DefaultKeywords()
	k := &cfg.Redeem.Keywords
	if k.PINError == nil {
		k.PINError = def.PINError
	}
	if k.Success == nil {
		k.Success = def.Success
	}
	if k.DetailsForm == nil {
		k.DetailsForm = def.DetailsForm
	}
	if k.StillOnForm == nil {
		k.StillOnForm = def.StillOnForm
	}
	if k.ConfirmError == nil {
		k.ConfirmError = def.ConfirmError
	}

	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
}

func applySelectorDefaults(sel *Selectors) {
	def := DefaultSelectors()
	set := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	set(&sel.PIN, def.PIN)
	set(&sel.ValidateButton, def.ValidateButton)
	set(&sel.DetailsCard, def.DetailsCard)
	set(&sel.AccountID, def.AccountID)
	set(&sel.Name, def.Name)
	set(&sel.BirthDate, def.BirthDate)
	set(&sel.Country, def.Country)
	set(&sel.Checkboxes, def.Checkboxes)
	set(&sel.VerifyButton, def.VerifyButton)
	set(&sel.RedeemButton, def.RedeemButton)
	set(&sel.Form, def.Form)
}
