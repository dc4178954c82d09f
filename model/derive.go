package model

// AppendState appends st to m.States unless a state with the same msg_id is
// already present, preserving the de-duplication invariant. It reports
// whether the append happened.
func (m *ArtifactModel) AppendState(st ArtifactState) bool {
	for _, existing := range m.States {
		if existing.KaiState.MsgID == st.KaiState.MsgID {
			return false
		}
	}
	m.States = append(m.States, st)
	return true
}

// RefreshDerived recomputes CurrentState, CurrentStateLenghts and
// ResultsDBTestcase from m.States. Call after every AppendState that
// returned true.
//
// current_state buckets, for every thread_id, that thread's single most
// recent ArtifactState (by kai_state.timestamp, ties broken by later
// position in States) keyed by that entry's own state value — not the most
// recent entry per (state, thread) pair. A thread moving from "queued" to
// "complete" therefore vacates the "queued" bucket entirely.
func (m *ArtifactModel) RefreshDerived() {
	latestByThread := make(map[string]ArtifactState)
	statesSeen := make(map[string]bool)
	testcases := make(map[string]bool)

	for _, st := range m.States {
		if st.KaiState.State != "" {
			statesSeen[st.KaiState.State] = true
		}
		if st.KaiState.TestCaseName != "" {
			testcases[st.KaiState.TestCaseName] = true
		}

		thread := st.KaiState.ThreadID
		current, exists := latestByThread[thread]
		if !exists || st.KaiState.Timestamp >= current.KaiState.Timestamp {
			latestByThread[thread] = st
		}
	}

	currentState := make(map[string][]ArtifactState, len(statesSeen))
	for state := range statesSeen {
		currentState[state] = []ArtifactState{}
	}
	for _, st := range latestByThread {
		if st.KaiState.State == "" {
			continue
		}
		currentState[st.KaiState.State] = append(currentState[st.KaiState.State], st)
	}

	currentStateLenghts := make(map[string]int, len(currentState))
	for state, entries := range currentState {
		currentStateLenghts[state] = len(entries)
	}

	resultsdb := make([]string, 0, len(testcases))
	for tc := range testcases {
		resultsdb = append(resultsdb, tc)
	}

	m.CurrentState = currentState
	m.CurrentStateLenghts = currentStateLenghts
	m.ResultsDBTestcase = resultsdb
}
