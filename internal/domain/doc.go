package domain

// Package domain contains the core business concepts for the pin redemption service.
// Keep this package free of transport (HTTP) and infrastructure (Chrome) concerns.
