package memory

import "krx-momentum-lab/internal/storage"

// NewStores returns a full in-memory backend.
func NewStores() *storage.Stores {
	return &storage.Stores{
		Runs:           NewRunStore(),
		Candidates:     NewCandidateStore(),
		Outcomes:       NewOutcomeStore(),
		PriceSnapshots: NewPriceSnapshotStore(),
		Weights:        NewWeightStore(),
		StrategyStates: NewStrategyStateStore(),
		Experiments:    NewExperimentStore(),

		PaperAccounts:  NewPaperAccountStore(),
		PaperPositions: NewPaperPositionStore(),
		PaperOrders:    NewPaperOrderStore(),

		LiveAccounts:  NewLiveAccountStore(),
		LivePositions: NewLivePositionStore(),
		LiveOrders:    NewLiveOrderStore(),

		BotState:        NewBotStateStore(),
		TrainingReports: NewTrainingReportStore(),
	}
}
