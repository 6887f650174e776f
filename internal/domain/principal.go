package domain

// Principal is the authenticated caller. PlatformUsernames holds the identities the
// user linked on external platforms, keyed by platform.
type Principal struct {
	Subject           string
	Name              string
	PlatformUsernames map[Platform]string
}

// PlatformUsername returns the caller's linked identity on the given platform.
func (p Principal) PlatformUsername(platform Platform) (string, bool) {
	username, ok := p.PlatformUsernames[platform]
	if !ok || username == "" {
		return "", false
	}
	return username, true
}
