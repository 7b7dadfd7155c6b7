package probecli

import "github.com/cygcompat/afunix/pkg/afunix"

// parseAddr accepts the conventional Linux textual forms: "" for the
// unnamed address (autobind on Bind, EINVAL on Connect), "@name" for an
// abstract address, and anything else as a pathname.
func parseAddr(s string) (afunix.Addr, error) {
	if s == "" {
		return afunix.Unnamed(), nil
	}
	if s[0] == '@' {
		return afunix.NewAddr(append([]byte{0}, s[1:]...))
	}
	return afunix.NewAddr([]byte(s))
}
