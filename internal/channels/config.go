package channels

// EventChannelsConfig configures buffer sizes for the event channels.
type EventChannelsConfig struct {
	RequestBufferSize   int
	ProgressBufferSize  int
	CompletedBufferSize int
}

// withDefaults substitutes sane buffer sizes for unset fields. Progress is
// the chattiest channel by far, one event per device per run.
func (c EventChannelsConfig) withDefaults() EventChannelsConfig {
	if c.RequestBufferSize <= 0 {
		c.RequestBufferSize = 16
	}
	if c.ProgressBufferSize <= 0 {
		c.ProgressBufferSize = 256
	}
	if c.CompletedBufferSize <= 0 {
		c.CompletedBufferSize = 16
	}
	return c
}
