// Package worker provides core.Worker implementations. ModelWorker drives a
// model.Model with a self-contained mission briefing and parses the reply
// into core.Findings. Workers are stateless and never see the conversation.
package worker
