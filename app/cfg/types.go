package cfg

import (
	"time"
)

type Cfg struct {
	// Storage configuration
	DBDriver  string
	DBDSN     string
	Namespace string

	// Application configuration
	Port              string
	BaseUrl           string
	APIAccessKey      string
	WorkerCount       int
	RefreshInterval   int
	FetchTimeout      int
	SubscriptionsFile string
	ExtractContent    bool

	// Application metadata
	UserAgent string
	Timezone  string
	LogFile   string
	Debug     bool
	Version   string
}

func (c *Cfg) RefreshEvery() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

func (c *Cfg) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}
