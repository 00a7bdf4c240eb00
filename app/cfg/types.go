package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	Port              string
	BaseUrl           string
	SiteName          string
	Gravatar          string
	FeedsDir          string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Friend request gating
	RequireCodeword bool
	Codeword        string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
