package assetsvc

import "time"

// AssetConfig holds configuration parameters for the asset store.
type AssetConfig struct {
	// MaxSize is the maximum allowed size of an uploaded image in bytes.
	// Default is 10MB.
	MaxSize int64 `env:"MAX_SIZE" default:"10485760"`

	// SweepSchedule is the cron schedule of the orphan sweeper, empty disables it
	SweepSchedule string `env:"SWEEP_SCHEDULE" default:"@every 1h"`

	// SweepGrace is the minimum age of an unreferenced asset before it is swept
	SweepGrace time.Duration `env:"SWEEP_GRACE" default:"15m"`
}
