package provider

import "strings"

// ResolveSymbol returns the ticker spelling providerName expects for inst.
// Instruments without an override use their own symbol.
func ResolveSymbol(inst Instrument, providerName string) string {
	if v := strings.TrimSpace(inst.ProviderSymbols[providerName]); v != "" {
		return v
	}
	if v := strings.TrimSpace(inst.ProviderSymbols[strings.ToLower(providerName)]); v != "" {
		return v
	}
	return inst.Symbol
}
