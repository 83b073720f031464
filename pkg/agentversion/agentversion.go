package agentversion

var (
	version   string
	commit    string
	buildTime string
)

// Version returns agent version.
func Version() string {
	if version == "" {
		version = "dev"
	}

	return version
}

// GitCommit returns the git commit the agent was built from.
func GitCommit() string {
	return commit
}

// BuildTime returns the build timestamp.
func BuildTime() string {
	return buildTime
}
