package storage

// Stores bundles every table interface behind one backend.
type Stores struct {
	Runs           RunStore
	Candidates     CandidateStore
	Outcomes       OutcomeStore
	PriceSnapshots PriceSnapshotStore
	Weights        WeightStore
	StrategyStates StrategyStateStore
	Experiments    ExperimentStore

	PaperAccounts  PaperAccountStore
	PaperPositions PaperPositionStore
	PaperOrders    PaperOrderStore

	LiveAccounts  LiveAccountStore
	LivePositions LivePositionStore
	LiveOrders    LiveOrderStore

	BotState        BotStateStore
	TrainingReports TrainingReportStore
}
