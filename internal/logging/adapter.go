package logging

import (
	"context"
	"fmt"
	"log/slog"

	azlog "github.com/Azure/azure-sdk-for-go/sdk/azcore/log"
)

// SlogAdapter forwards third-party client logs into slog.
// It satisfies the printf-style logger hook used by the Redis client.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger. If logger is nil, slog.Default() is used.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Printf logs a formatted message at debug level.
func (a *SlogAdapter) Printf(ctx context.Context, format string, v ...interface{}) {
	a.logger.DebugContext(ctx, fmt.Sprintf(format, v...))
}

// AzureEvents are the Azure SDK log classes forwarded by InstallAzureListener.
// Request and response bodies are left out.
var AzureEvents = []azlog.Event{azlog.EventRetryPolicy, azlog.EventResponseError, azlog.EventLRO}

// AzureListener returns an Azure SDK log listener that writes to the adapter.
// Response errors are logged at warn, everything else at debug.
func (a *SlogAdapter) AzureListener() func(azlog.Event, string) {
	return func(event azlog.Event, msg string) {
		level := slog.LevelDebug
		if event == azlog.EventResponseError {
			level = slog.LevelWarn
		}
		a.logger.Log(context.Background(), level, msg, slog.String("azure_event", string(event)))
	}
}

// InstallAzureListener routes Azure SDK logging through the adapter.
// The listener is process-wide.
func (a *SlogAdapter) InstallAzureListener() {
	azlog.SetEvents(AzureEvents...)
	azlog.SetListener(a.AzureListener())
}
