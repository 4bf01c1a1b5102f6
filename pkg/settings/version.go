package settings

// set by -ldflags "-X github.com/liut/parlor/pkg/settings.version=..."
var version = "dev"
