package fleetctl

// Indirection layer so command wiring can be tested without a daemon.

var (
	fnShowStatus      = showStatus
	fnShowModels      = showModels
	fnShowHealth      = showHealth
	fnSetGamingMode   = setGamingMode
	fnStopAll         = stopAllContainers
	fnRunAgentTask    = runAgentTask
	fnShowToolCatalog = showToolCatalog
	fnShowRecentRuns  = showRecentRuns
	fnChatOnce        = chatOnce
)
