package messaging

import "rotathumb/pkg/render"

// JobMessage is sent over Kafka for one full sweep
type JobMessage struct {
	JobID string     `json:"job_id"`
	Job   render.Job `json:"job"`
}

// FrameTask is sent over RabbitMQ for a single angle of a sweep
type FrameTask struct {
	JobID string     `json:"job_id"`
	Angle int        `json:"angle"`
	Job   render.Job `json:"job"`
}
