package version

// Overridden at build time via -ldflags "-X dnshelper/internal/app/version.buildVersion=...".
var (
	buildVersion = "dev"
	builtAt      = ""
)

type Info struct {
	Version string `json:"version"`
	BuiltAt string `json:"built_at,omitempty"`
}

func BuildVersion() string {
	return buildVersion
}

func GetInfo() Info {
	return Info{
		Version: buildVersion,
		BuiltAt: builtAt,
	}
}
