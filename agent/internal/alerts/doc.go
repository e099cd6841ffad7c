// Package alerts evaluates threshold rules against each successful cycle
// result and notifies Slack, Teams or plain HTTP webhooks when a rule fires
// or resolves.
package alerts
