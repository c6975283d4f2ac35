package ports

import "time"

type Policy struct {
	MaxQueueLen  int           `yaml:"max_queue_len" validate:"gte=0"`
	MaxBatchSize int           `yaml:"max_batch_size" validate:"gte=0"`
	IdleSleep    time.Duration `yaml:"idle_sleep"`

	OnQueueFull string `yaml:"on_queue_full" validate:"omitempty,oneof=block drop reject"`
}
