package buildinfo

// ProductName is shown to receivers as the media title source.
const ProductName = "UniRemote"

// Version is set at build time via -ldflags "-X go2tv.app/uniremote/internal/buildinfo.Version=...".
var Version = "dev"

// UserAgent is the product token sent on every ECP request.
func UserAgent() string {
	return ProductName + "/" + Version
}
