/*
Package events provides an in-memory event broker for BEE's internal
pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
workflow and task lifecycle events to interested subscribers. It is
topic-agnostic — every subscriber sees every event — with asynchronous,
non-blocking delivery, enabling loose coupling between the Workflow
Manager (the only publisher) and any observer (logging, metrics, a future
notification sink) that wants to react to state changes without being
wired directly into the component that produced them.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                    │          │
	│  │  - In-memory message bus                     │          │
	│  │  - Topic-agnostic (all events broadcast)     │          │
	│  │  - Non-blocking publish                      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                  │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)     │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)       │          │
	│  └──────────────────────────────────────────────┘          │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

A slow or inattentive subscriber never blocks the broker or other
subscribers: Publish enqueues onto the broker's own buffered channel,
and broadcast drops an event for any subscriber whose 50-entry buffer
is already full rather than waiting on it.

# Event types

	EventWorkflowSubmitted  workflow accepted, not yet started
	EventWorkflowStarted    entry tasks dispatched
	EventWorkflowPaused     dispatch suspended
	EventWorkflowResumed    dispatch resumed
	EventWorkflowFailed     a task failed with no checkpoint to restart from
	EventWorkflowArchived   workflow archived to disk and removed from the Graph Store
	EventTaskReady          a task's inputs are all bound
	EventTaskScheduled      the Scheduler allocated the task a start time/resource
	EventTaskSubmitted      the Task Manager submitted the task to the backend
	EventTaskStateChanged   a polled or reported backend state transition
	EventTaskFinalized      the task reached a terminal TaskState
	EventTaskRestarted      restart_task produced a successor task

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		log.WithComponent("events").Info().Str("type", string(ev.Type)).Msg(ev.Message)
	}
*/
package events
