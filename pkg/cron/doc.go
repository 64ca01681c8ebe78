/*
Package cron implements the scheduled enqueuers that keep the task
queue fed without any direct processing of their own.

Two one-shot jobs exist, each meant to run from a system scheduler:

  - FreezeJob finds volatile files whose hold period has passed and
    publishes a freeze task for every file whose ancestry permits it.
  - QCJob publishes a qc task for every file measured yesterday, so
    reports pick up quality-control releases within a day.

Both jobs publish at priority 100, the bottom of the queue: enqueued
maintenance never delays near-real-time processing. Neither job touches
the scientific stack; failures are reported to Slack and surfaced
through the exit code.

# Freezability

A volatile file may only be frozen once its entire source ancestry is
settled. Every ancestor reached through sourceFileIds must be
non-volatile and non-experimental; only the candidate itself may still
be volatile. A categorize file built on a volatile radar file therefore
waits until the radar file freezes first, which the next cron round
picks up.
*/
package cron
