package state

var (
	DBG_log_router        = false
	DBG_log_route_table   = false
	DBG_log_route_changes = false
	DBG_log_packets       = false
)
