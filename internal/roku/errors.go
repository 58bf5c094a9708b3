package roku

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"

	"go2tv.app/uniremote/internal/domain"
)

const (
	forbiddenGuidance = "Enable External Control: on your Roku go to Settings > System > Advanced system settings > " +
		"External Control (or Control by mobile apps) and set Network Access to Default/Permissive and ensure " +
		"Control by mobile apps is enabled. Also ensure this device is on the same subnet, or use Permissive."
	powerOnGuidance = "The TV may be asleep with network disabled. On Roku TV, enable Settings > System > Power > " +
		"Fast TV Start to allow wake over network. Otherwise, wake the TV with the physical remote, then try again."
	keyGuidance = "The Roku did not respond. If the TV is asleep, enable Fast TV Start or wake it with the physical remote."
)

func notConfiguredError() *domain.RemoteError {
	return &domain.RemoteError{
		Kind:    domain.KindPrecondition,
		Code:    "ROKU_NOT_CONFIGURED",
		Message: "Please configure Roku IP in settings",
		SuggestedFixes: []string{
			"Run a Roku scan and pick a device, or enter the Roku IP address in settings.",
		},
	}
}

func invalidKeyError(key string) *domain.RemoteError {
	return &domain.RemoteError{
		Kind:    domain.KindUnsupported,
		Code:    "ROKU_KEY_INVALID",
		Message: fmt.Sprintf("Key %q is not part of the Roku ECP vocabulary", key),
		Details: map[string]any{"key": key},
	}
}

func invalidAppError() *domain.RemoteError {
	return &domain.RemoteError{
		Kind:    domain.KindPrecondition,
		Code:    "ROKU_APP_ID_REQUIRED",
		Message: "An app or input id is required to launch",
	}
}

func transportError(target string, powerOn bool, err error) *domain.RemoteError {
	if isTimeoutLike(err) {
		guidance := keyGuidance
		if powerOn {
			guidance = powerOnGuidance
		}
		return &domain.RemoteError{
			Kind:    domain.KindTransport,
			Code:    "ROKU_TIMEOUT",
			Message: fmt.Sprintf("Network timeout connecting to %s. %s", target, guidance),
			SuggestedFixes: []string{
				"Enable Settings > System > Power > Fast TV Start on the Roku TV.",
				"Wake the TV with the physical remote and try again.",
				"Check this device is on the same network as the Roku.",
			},
			Details: map[string]any{"url": target, "power_on": powerOn},
			Err:     err,
		}
	}
	return &domain.RemoteError{
		Kind:    domain.KindTransport,
		Code:    "ROKU_UNREACHABLE",
		Message: describe(target, err),
		Details: map[string]any{"url": target},
		Err:     err,
	}
}

func statusError(target string, resp *http.Response) *domain.RemoteError {
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if resp.StatusCode == http.StatusForbidden {
		return &domain.RemoteError{
			Kind:       domain.KindProtocol,
			Code:       "ROKU_FORBIDDEN",
			Message:    fmt.Sprintf("HTTP %s for %s. %s", status, target, forbiddenGuidance),
			StatusCode: resp.StatusCode,
			SuggestedFixes: []string{
				"Set Settings > System > Advanced system settings > Control by mobile apps > Network access to Default or Permissive.",
			},
			Details: map[string]any{"url": target},
		}
	}
	return &domain.RemoteError{
		Kind:       domain.KindProtocol,
		Code:       "ROKU_HTTP_ERROR",
		Message:    fmt.Sprintf("HTTP %s for %s", status, target),
		StatusCode: resp.StatusCode,
		Details:    map[string]any{"url": target},
	}
}

func isConnectFailure(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
