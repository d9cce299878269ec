package round

import (
	"encoding/json"
	"time"

	"wager-service/internal/model"
	"wager-service/internal/service/settings"

	"gorm.io/datatypes"
)

const (
	StatusOpen      = "open"
	StatusClosing   = "closing"
	StatusResolving = "resolving"
	StatusFinished  = "finished"
	StatusError     = "error"
)

// PoolDrawTicketSpace is the outcome space for pool-draw rounds. Stakes map
// onto half-open ticket ranges partitioning [0, PoolDrawTicketSpace).
const PoolDrawTicketSpace int64 = 1000000

// Participant aggregates one user's position in a round. TicketStart and
// TicketEnd are recomputed on every accepted stake for pool-draw rounds;
// TicketEnd is exclusive.
type Participant struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar,omitempty"`
	TotalStake  int64  `json:"totalStake"`
	TicketStart int64  `json:"ticketStart,omitempty"`
	TicketEnd   int64  `json:"ticketEnd,omitempty"`
}

// Stake is one accepted bet.
type Stake struct {
	UserID   int64     `json:"userId"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
	Amount   int64     `json:"amount"`
	Field    int       `json:"field,omitempty"` // field-lottery only
	PlacedAt time.Time `json:"placedAt"`
}

type Payout struct {
	UserID     int64  `json:"userId"`
	Username   string `json:"username"`
	Amount     int64  `json:"amount"`
	StakeOnWin int64  `json:"stakeOnWin,omitempty"`
}

// Outcome is the resolution record. Space is zero for rounds whose winner is
// deterministic (ascending-bid). Remainder is the part of the pot kept by
// the house beyond the declared commission, from payout floor rounding or a
// winnerless lottery.
type Outcome struct {
	Value      int64    `json:"value"`
	Space      int64    `json:"space"`
	Field      int      `json:"field,omitempty"` // winning field, field-lottery only
	WinnerIDs  []int64  `json:"winnerIds"`
	Payouts    []Payout `json:"payouts"`
	Commission int64    `json:"commission"`
	Remainder  int64    `json:"remainder"`
}

// roundState is the in-memory working copy of the active round. The engine
// mutates a clone and swaps it in only after the snapshot persists, so a
// failed write never leaves a half-applied bet visible.
type roundState struct {
	ID                int64
	Number            int64
	Status            string
	Pot               int64
	HouseContribution int64
	ServerSeed        string
	HashedServerSeed  string
	ClientSeed        string
	Nonce             int64
	Participants      []Participant
	Stakes            []Stake
	LeaderID          int64
	Distinct          map[int64]bool
	StartedAt         time.Time
	DeadlineAt        *time.Time
	EndsAt            *time.Time
	Outcome           *Outcome
	Log               []string
	CreatedAt         time.Time
}

func (st *roundState) clone() *roundState {
	cp := *st
	cp.Participants = append([]Participant(nil), st.Participants...)
	cp.Stakes = append([]Stake(nil), st.Stakes...)
	cp.Log = append([]string(nil), st.Log...)
	cp.Distinct = make(map[int64]bool, len(st.Distinct))
	for id := range st.Distinct {
		cp.Distinct[id] = true
	}
	if st.DeadlineAt != nil {
		t := *st.DeadlineAt
		cp.DeadlineAt = &t
	}
	if st.EndsAt != nil {
		t := *st.EndsAt
		cp.EndsAt = &t
	}
	if st.Outcome != nil {
		o := *st.Outcome
		o.WinnerIDs = append([]int64(nil), st.Outcome.WinnerIDs...)
		o.Payouts = append([]Payout(nil), st.Outcome.Payouts...)
		cp.Outcome = &o
	}
	return &cp
}

func (st *roundState) participant(userID int64) *Participant {
	for i := range st.Participants {
		if st.Participants[i].UserID == userID {
			return &st.Participants[i]
		}
	}
	return nil
}

func (st *roundState) stakeTotal() int64 {
	var sum int64
	for _, s := range st.Stakes {
		sum += s.Amount
	}
	return sum
}

func (st *roundState) accepting() bool {
	return st.Status == StatusOpen || st.Status == StatusClosing
}

func (st *roundState) appendLog(line string) {
	st.Log = append(st.Log, line)
	if len(st.Log) > 200 {
		st.Log = st.Log[len(st.Log)-200:]
	}
}

// toModel serializes the state onto a Round row. The caller owns ID fields
// for new rows.
func (st *roundState) toModel(roomID, variant string, cfg settings.RoomConfig) (*model.Round, error) {
	participants, err := json.Marshal(st.Participants)
	if err != nil {
		return nil, err
	}
	stakes, err := json.Marshal(st.Stakes)
	if err != nil {
		return nil, err
	}
	logRaw, err := json.Marshal(st.Log)
	if err != nil {
		return nil, err
	}
	cfgRaw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	row := &model.Round{
		ID:                    st.ID,
		RoomID:                roomID,
		RoundNumber:           st.Number,
		Variant:               variant,
		Status:                st.Status,
		Pot:                   st.Pot,
		HouseContribution:     st.HouseContribution,
		CommissionRatePercent: cfg.CommissionRatePercent,
		ServerSeed:            st.ServerSeed,
		HashedServerSeed:      st.HashedServerSeed,
		ClientSeed:            st.ClientSeed,
		Nonce:                 st.Nonce,
		ParticipantsJSON:      datatypes.JSON(participants),
		StakesJSON:            datatypes.JSON(stakes),
		ConfigJSON:            datatypes.JSON(cfgRaw),
		LogJSON:               datatypes.JSON(logRaw),
		StartedAt:             st.StartedAt,
		DeadlineAt:            st.DeadlineAt,
		EndsAt:                st.EndsAt,
		CreatedAt:             st.CreatedAt,
	}
	if st.LeaderID != 0 {
		leader := st.LeaderID
		row.WinnerID = &leader
	}
	if st.Outcome != nil {
		outRaw, err := json.Marshal(st.Outcome)
		if err != nil {
			return nil, err
		}
		row.OutcomeJSON = datatypes.JSON(outRaw)
		row.CommissionAmount = st.Outcome.Commission
		if len(st.Outcome.WinnerIDs) == 1 {
			w := st.Outcome.WinnerIDs[0]
			row.WinnerID = &w
		}
	}
	return row, nil
}

func stateFromModel(row *model.Round) (*roundState, error) {
	st := &roundState{
		ID:                row.ID,
		Number:            row.RoundNumber,
		Status:            row.Status,
		Pot:               row.Pot,
		HouseContribution: row.HouseContribution,
		ServerSeed:        row.ServerSeed,
		HashedServerSeed:  row.HashedServerSeed,
		ClientSeed:        row.ClientSeed,
		Nonce:             row.Nonce,
		Distinct:          make(map[int64]bool),
		StartedAt:         row.StartedAt,
		DeadlineAt:        row.DeadlineAt,
		EndsAt:            row.EndsAt,
		CreatedAt:         row.CreatedAt,
	}
	if len(row.ParticipantsJSON) > 0 {
		if err := json.Unmarshal(row.ParticipantsJSON, &st.Participants); err != nil {
			return nil, err
		}
	}
	if len(row.StakesJSON) > 0 {
		if err := json.Unmarshal(row.StakesJSON, &st.Stakes); err != nil {
			return nil, err
		}
	}
	if len(row.LogJSON) > 0 {
		if err := json.Unmarshal(row.LogJSON, &st.Log); err != nil {
			return nil, err
		}
	}
	if len(row.OutcomeJSON) > 0 {
		var out Outcome
		if err := json.Unmarshal(row.OutcomeJSON, &out); err != nil {
			return nil, err
		}
		st.Outcome = &out
	}
	for _, s := range st.Stakes {
		st.Distinct[s.UserID] = true
	}
	if row.WinnerID != nil {
		st.LeaderID = *row.WinnerID
	}
	return st, nil
}

// View is the wire representation of a round. The server seed is withheld
// until the round reaches a terminal status.
type View struct {
	RoomID            string        `json:"roomId"`
	RoundID           int64         `json:"roundId"`
	Number            int64         `json:"number"`
	Variant           string        `json:"variant"`
	Status            string        `json:"status"`
	Pot               int64         `json:"pot"`
	HouseContribution int64         `json:"houseContribution,omitempty"`
	HashedServerSeed  string        `json:"hashedServerSeed"`
	ServerSeed        string        `json:"serverSeed,omitempty"`
	ClientSeed        string        `json:"clientSeed"`
	Nonce             int64         `json:"nonce"`
	Participants      []Participant `json:"participants"`
	Stakes            []Stake       `json:"stakes"`
	LeaderID          int64         `json:"leaderId,omitempty"`
	StartedAt         time.Time     `json:"startedAt"`
	DeadlineAt        *time.Time    `json:"deadlineAt,omitempty"`
	EndsAt            *time.Time    `json:"endsAt,omitempty"`
	Outcome           *Outcome      `json:"outcome,omitempty"`
}

func (st *roundState) view(roomID, variant string) View {
	v := View{
		RoomID:            roomID,
		RoundID:           st.ID,
		Number:            st.Number,
		Variant:           variant,
		Status:            st.Status,
		Pot:               st.Pot,
		HouseContribution: st.HouseContribution,
		HashedServerSeed:  st.HashedServerSeed,
		ClientSeed:        st.ClientSeed,
		Nonce:             st.Nonce,
		Participants:      append([]Participant(nil), st.Participants...),
		Stakes:            append([]Stake(nil), st.Stakes...),
		LeaderID:          st.LeaderID,
		StartedAt:         st.StartedAt,
		DeadlineAt:        st.DeadlineAt,
		EndsAt:            st.EndsAt,
	}
	if st.Status == StatusFinished || st.Status == StatusError {
		v.ServerSeed = st.ServerSeed
		v.Outcome = st.Outcome
	}
	return v
}
