package postgres

import "krx-momentum-lab/internal/storage"

// NewStores returns the full postgres-backed store set over one pool.
func NewStores(pool *Pool) *storage.Stores {
	return &storage.Stores{
		Runs:           NewRunStore(pool),
		Candidates:     NewCandidateStore(pool),
		Outcomes:       NewOutcomeStore(pool),
		PriceSnapshots: NewPriceSnapshotStore(pool),
		Weights:        NewWeightStore(pool),
		StrategyStates: NewStrategyStateStore(pool),
		Experiments:    NewExperimentStore(pool),

		PaperAccounts:  NewPaperAccountStore(pool),
		PaperPositions: NewPaperPositionStore(pool),
		PaperOrders:    NewPaperOrderStore(pool),

		LiveAccounts:  NewLiveAccountStore(pool),
		LivePositions: NewLivePositionStore(pool),
		LiveOrders:    NewLiveOrderStore(pool),

		BotState:        NewBotStateStore(pool),
		TrainingReports: NewTrainingReportStore(pool),
	}
}
