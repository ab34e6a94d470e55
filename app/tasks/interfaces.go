package tasks

import "github.com/lysyi3m/event-feed/app/source"

// TaskSchedulerInterface is what the server needs from the background
// import pipeline.
//
//	scheduler := NewScheduler(configCache, sourceRepo, itemRepo, httpClient, parser, options)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueSource(config)
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueSource(config *source.Config) error
}
