package mongodb

import (
	"net"
	"net/url"
	"strconv"
)

// BuildURI returns opts.URI when set, otherwise a mongodb:// URI built from
// the host, credentials and connection parameters.
func BuildURI(opts *Options) string {
	if opts.URI != "" {
		return opts.URI
	}

	u := url.URL{
		Scheme: "mongodb",
		Host:   opts.Host,
		Path:   "/" + opts.Database,
	}
	if opts.Port != 0 {
		u.Host = net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	}
	if opts.Username != "" {
		if opts.Password != "" {
			u.User = url.UserPassword(opts.Username, opts.Password)
		} else {
			u.User = url.User(opts.Username)
		}
	}

	params := url.Values{}
	if opts.AuthSource != "" && opts.AuthSource != "admin" {
		params.Set("authSource", opts.AuthSource)
	}
	if opts.ReplicaSet != "" {
		params.Set("replicaSet", opts.ReplicaSet)
	}
	if opts.Direct {
		params.Set("directConnection", "true")
	}
	u.RawQuery = params.Encode()

	return u.String()
}
