package remote

import (
	"errors"

	"go2tv.app/uniremote/internal/domain"
)

func rokuNotConfiguredError() *domain.RemoteError {
	return &domain.RemoteError{
		Kind:    domain.KindPrecondition,
		Code:    "ROKU_NOT_CONFIGURED",
		Message: "Please configure Roku IP in settings",
		SuggestedFixes: []string{
			"Run a Roku scan and pick a device, or enter the Roku IP address in settings.",
		},
	}
}

func unsupportedError(code, message string, cmd domain.Command) *domain.RemoteError {
	return &domain.RemoteError{
		Kind:    domain.KindUnsupported,
		Code:    code,
		Message: message,
		Details: map[string]any{"command": string(cmd)},
	}
}

func fireTVUnavailableError() *domain.RemoteError {
	return &domain.RemoteError{
		Kind:    domain.KindUnsupported,
		Code:    "FIRETV_UNAVAILABLE",
		Message: "Fire TV control is unavailable: no Fling SDK binding was found",
		SuggestedFixes: []string{
			"Build with a Fling SDK binding or set firetv.sdk_plugin to a plugin that exports FlingSDK.",
		},
	}
}

func internalError(message string, err error) *domain.RemoteError {
	return &domain.RemoteError{Kind: domain.KindInternal, Code: "INTERNAL_ERROR", Message: message, Err: err}
}

func asRemoteError(err error) *domain.RemoteError {
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr
	}
	return internalError(err.Error(), err)
}
