package events

import (
	"strings"
	"time"
)

// Canonical message types emitted by the core.
const (
	TypeJobCreated       = "job:created"
	TypeJobStarted       = "job:started"
	TypeJobCompleted     = "job:completed"
	TypeJobFailed        = "job:failed"
	TypeRetryCreated     = "retry:created"
	TypeRetryMaxAttempts = "retry:max-attempts"

	TypeScanStarted   = "scan:started"
	TypeScanProgress  = "scan:progress"
	TypeScanCompleted = "scan:completed"
	TypeScanFailed    = "scan:failed"

	TypeDuplicateFound  = "duplicate:found"
	TypeAlertHighImpact = "alert:high-impact"

	TypeCacheHit        = "cache:hit"
	TypeCacheMiss       = "cache:miss"
	TypeCacheInvalidate = "cache:invalidate"

	TypeStatsUpdate = "stats:update"
	TypeActivityNew = "activity:new"

	// Handshake types exchanged with subscribers.
	TypeConnected     = "connected"
	TypeSubscribed    = "subscribed"
	TypeUnsubscribed  = "unsubscribed"
	TypePong          = "pong"
	TypeSubscriptions = "subscriptions"
	TypeError         = "error"
)

// Broadcast channels. Subscribers pick the streams they care about.
const (
	ChannelJobs       = "jobs"
	ChannelScans      = "scans"
	ChannelDuplicates = "duplicates"
	ChannelAlerts     = "alerts"
	ChannelCache      = "cache"
	ChannelStats      = "stats"
	ChannelActivity   = "activity"
)

// AllChannels lists every broadcast channel a subscriber may request.
var AllChannels = []string{
	ChannelJobs,
	ChannelScans,
	ChannelDuplicates,
	ChannelAlerts,
	ChannelCache,
	ChannelStats,
	ChannelActivity,
}

// ChannelFor maps a message type to the channel it is broadcast on.
// Handshake types have no channel; they are sent directly to one client.
func ChannelFor(msgType string) string {
	switch {
	case strings.HasPrefix(msgType, "job:"), strings.HasPrefix(msgType, "retry:"):
		return ChannelJobs
	case strings.HasPrefix(msgType, "scan:"):
		return ChannelScans
	case strings.HasPrefix(msgType, "duplicate:"):
		return ChannelDuplicates
	case strings.HasPrefix(msgType, "alert:"):
		return ChannelAlerts
	case strings.HasPrefix(msgType, "cache:"):
		return ChannelCache
	case msgType == TypeStatsUpdate:
		return ChannelStats
	case msgType == TypeActivityNew:
		return ChannelActivity
	default:
		return ""
	}
}

// MaxDuplicateFiles caps the affected-file list carried by duplicate:found
// so one pathological group cannot flood subscribers.
const MaxDuplicateFiles = 5

func JobCreated(jobID, pipelineID string) Message {
	return New(TypeJobCreated, map[string]any{
		"job_id":   jobID,
		"job_type": pipelineID,
	})
}

func JobStarted(jobID, pipelineID string) Message {
	return New(TypeJobStarted, map[string]any{
		"job_id":   jobID,
		"job_type": pipelineID,
	})
}

func JobCompleted(jobID, pipelineID string, duration time.Duration) Message {
	return New(TypeJobCompleted, map[string]any{
		"job_id":   jobID,
		"job_type": pipelineID,
		"duration": duration.Seconds(),
	})
}

func JobFailed(jobID, pipelineID string, errFields map[string]any, retrying bool) Message {
	fields := map[string]any{
		"job_id":   jobID,
		"job_type": pipelineID,
		"retrying": retrying,
	}
	if errFields != nil {
		fields["error"] = errFields
	}
	return New(TypeJobFailed, fields)
}

func RetryCreated(originalID, retryID string, attempt, maxAttempts int, reason string, delay time.Duration) Message {
	return New(TypeRetryCreated, map[string]any{
		"job_id":       originalID,
		"retry_job_id": retryID,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"reason":       reason,
		"delay_ms":     delay.Milliseconds(),
	})
}

func RetryMaxAttempts(originalID string, attempts int) Message {
	return New(TypeRetryMaxAttempts, map[string]any{
		"original_id": originalID,
		"attempts":    attempts,
	})
}

func ScanStarted(jobID, scanType string, paths ...string) Message {
	fields := map[string]any{
		"job_id":    jobID,
		"scan_type": scanType,
	}
	switch len(paths) {
	case 0:
	case 1:
		fields["repository"] = paths[0]
	default:
		fields["repositories"] = paths
	}
	return New(TypeScanStarted, fields)
}

func ScanProgress(jobID, stage string, percent float64, filesProcessed int) Message {
	return New(TypeScanProgress, map[string]any{
		"job_id":          jobID,
		"stage":           stage,
		"percent":         percent,
		"files_processed": filesProcessed,
	})
}

func ScanCompleted(jobID string, duration time.Duration, metrics map[string]any) Message {
	fields := map[string]any{
		"job_id":           jobID,
		"duration_seconds": duration.Seconds(),
	}
	if metrics != nil {
		fields["metrics"] = metrics
	}
	return New(TypeScanCompleted, fields)
}

func ScanFailed(jobID, message string) Message {
	return New(TypeScanFailed, map[string]any{
		"job_id": jobID,
		"error":  message,
	})
}

func DuplicateFound(jobID string, files []string, lineCount int) Message {
	truncated := files
	if len(truncated) > MaxDuplicateFiles {
		truncated = truncated[:MaxDuplicateFiles]
	}
	return New(TypeDuplicateFound, map[string]any{
		"job_id":      jobID,
		"files":       truncated,
		"total_files": len(files),
		"line_count":  lineCount,
	})
}

func AlertHighImpact(message string, fields map[string]any) Message {
	all := map[string]any{"message": message}
	for k, v := range fields {
		all[k] = v
	}
	return New(TypeAlertHighImpact, all)
}

func CacheHit(key string) Message {
	return New(TypeCacheHit, map[string]any{"key": key})
}

func CacheMiss(key string) Message {
	return New(TypeCacheMiss, map[string]any{"key": key})
}

func CacheInvalidate(key string) Message {
	return New(TypeCacheInvalidate, map[string]any{"key": key})
}

func StatsUpdate(stats map[string]any) Message {
	return New(TypeStatsUpdate, map[string]any{"stats": stats})
}

func ActivityNew(activity any) Message {
	return New(TypeActivityNew, map[string]any{"activity": activity})
}

func Connected(clientID string) Message {
	return New(TypeConnected, map[string]any{
		"client_id": clientID,
		"channels":  AllChannels,
	})
}

func Subscribed(channels []string) Message {
	return New(TypeSubscribed, map[string]any{"channels": channels})
}

func Unsubscribed(channels []string) Message {
	return New(TypeUnsubscribed, map[string]any{"channels": channels})
}

func Pong() Message {
	return New(TypePong, nil)
}

func Subscriptions(channels []string) Message {
	return New(TypeSubscriptions, map[string]any{"channels": channels})
}

func ErrorMessage(code, message string) Message {
	return New(TypeError, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
