package mail

import (
	"net/mail"
	"strings"
)

// AddressOf extracts the first bare address from a From header, lower-cased.
// Unparseable headers fall back to the trimmed raw value.
func AddressOf(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	addrs, err := mail.ParseAddressList(from)
	if err != nil || len(addrs) == 0 {
		return strings.ToLower(strings.Trim(from, "<> "))
	}
	return strings.ToLower(strings.TrimSpace(addrs[0].Address))
}

// DomainOf returns the domain part of an address or From header.
func DomainOf(from string) string {
	address := AddressOf(from)
	at := strings.LastIndex(address, "@")
	if at == -1 {
		return ""
	}
	return strings.Trim(address[at+1:], ". ")
}
