// SPDX-License-Identifier: MIT

package slippigg

// PlayerReportPayload is the wire form of one player's results.
type PlayerReportPayload struct {
	UID             string  `json:"fbUid"`
	SlotType        uint8   `json:"slotType"`
	DamageDone      float64 `json:"damageDone"`
	StocksRemaining uint8   `json:"stocksRemaining"`
	CharacterID     uint8   `json:"characterId"`
	ColorID         uint8   `json:"characterColor"`
	StartingStocks  uint8   `json:"startingStocks"`
	StartingPercent float64 `json:"startingPercent"`
}

// GameReportPayload is the wire form of a finalized game report.
type GameReportPayload struct {
	UID            string                `json:"fbUid"`
	PlayKey        string                `json:"playKey"`
	MatchID        string                `json:"matchId"`
	PlayMode       uint8                 `json:"mode"`
	DurationFrames uint32                `json:"durationFrames"`
	GameIndex      uint32                `json:"gameIndex"`
	TiebreakIndex  uint32                `json:"tiebreakIndex"`
	WinnerIndex    int8                  `json:"winnerIdx"`
	GameEndMethod  uint8                 `json:"gameEndMethod"`
	LRASInitiator  int8                  `json:"lrasInitiator"`
	StageID        uint16                `json:"stageId"`
	Players        []PlayerReportPayload `json:"players"`
}
