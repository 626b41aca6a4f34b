package interfaces

import "microstructure-cache/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger shares freshly written snapshots with external listeners.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Broadcast pushes one snapshot to every subscribed listener.
	Broadcast(symbol string, snapshot models.MSymbolSnapshot)

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
