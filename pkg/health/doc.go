/*
Package health provides consecutive-failure/-success tracking and a
small family of Checker implementations for probing whether something
external is usable.

# Checkers

A Checker performs one kind of probe and reports a Result:

  - ExecChecker runs a command and considers the check healthy on exit
    code 0. This is the checker BEE actually wires up: the Task
    Manager's GET /ready endpoint uses an ExecChecker against the
    configured workload backend's own version-query command
    (squeue --version for Slurm, bjobs -V for LSF, true for the local
    simple backend), so a missing or broken scheduler CLI surfaces as
    a 503 at startup instead of as a mysterious failure on the first
    real job submission.

  - TCPChecker dials an address and considers the check healthy if the
    connection succeeds.

  - HTTPChecker issues an HTTP request and considers the check healthy
    if the response status falls within [ExpectedStatusMin,
    ExpectedStatusMax].

TCPChecker and HTTPChecker are general-purpose and carried for any
future endpoint that needs to probe a network service rather than a
local binary; neither currently has a caller in this repository.

# Status

Status accumulates Results over time via Update, tracking
ConsecutiveFailures/ConsecutiveSuccesses and flipping Healthy to false
once ConsecutiveFailures reaches Config.Retries. pkg/api's readiness
handler keeps one Status per process and reports it on every /ready
request; it does not itself retry or poll — each HTTP request triggers
exactly one Check call.

Despite the name overlap, the Task Manager's job_queue ZOMBIE
escalation (pkg/taskmanager) does not use this package: it keeps its
own consecutive-failure counter on the jobQueueEntry because it needs
per-job backoff scheduling alongside the failure count, which Status
does not model.
*/
package health
