// ABOUTME: Prometheus metric names and help texts
// ABOUTME: Shared by the clock engine and the time server
package metrics

const (
	ClientTimeDeltaH   = "The current difference between the local monotonic clock and server time in milliseconds"
	ClientTimeDeltaN   = "klok_client_time_delta_ms"
	ClientAccuracyH    = "The accuracy of the current time delta in milliseconds"
	ClientAccuracyN    = "klok_client_accuracy_ms"
	ClientConnectedH   = "Whether the client is connected to the time server (1) or not (0)"
	ClientConnectedN   = "klok_client_connected"
	ClientRoundsH      = "The total number of completed sampling rounds"
	ClientRoundsN      = "klok_client_sampling_rounds"
	ClientReconnectsH  = "The total number of automatic reconnection attempts"
	ClientReconnectsN  = "klok_client_reconnects"
	ClientStallsH      = "The total number of detected clock stalls"
	ClientStallsN      = "klok_client_stalls"
	ClientBackoffH     = "The current reconnection wait in milliseconds"
	ClientBackoffN     = "klok_client_backoff_ms"
	ServerReqsServedH  = "The total number of time requests served"
	ServerReqsServedN  = "klok_server_reqs_served"
	ServerReqsInvalidH = "The total number of unparseable requests received"
	ServerReqsInvalidN = "klok_server_reqs_invalid"
	ServerNTPErrorsH   = "The total number of failed upstream NTP queries"
	ServerNTPErrorsN   = "klok_server_ntp_errors"
	ServerConnsH       = "The number of open websocket connections"
	ServerConnsN       = "klok_server_connections"
	ServerLeapH        = "The leap indicator of the last upstream NTP response"
	ServerLeapN        = "klok_server_leap_indicator"
)
