package app

import (
	"sort"

	"arena-quiz-service/internal/domain"
)

// BuildLeaderboard ranks every registered student of a room. It reads nothing but the
// room's questions, students and responses, so repeated calls on the same snapshot agree.
// Responses to the current question count only once its answers are revealed.
func BuildLeaderboard(room domain.Room, scorer *Scorer) domain.Leaderboard {
	current := rankStudents(room, scorer, scoredQuestions(room))

	// Rank before the current question, for rank movement between questions.
	var previous map[string]int
	if room.CurrentQuestionIndex > 0 {
		prev := rankStudents(room, scorer, room.CurrentQuestionIndex)
		previous = make(map[string]int, len(prev))
		for _, e := range prev {
			previous[e.StudentID] = e.Rank
		}
	}

	for i := range current {
		current[i].PreviousRank = previous[current[i].StudentID]
	}
	return domain.Leaderboard{
		RoomCode:      room.Code,
		QuestionIndex: room.CurrentQuestionIndex,
		Entries:       current,
	}
}

// scoredQuestions is how many leading questions may contribute to the board.
func scoredQuestions(room domain.Room) int {
	if room.Status == domain.StatusEnded || room.AnswersRevealed {
		return len(room.Questions)
	}
	return room.CurrentQuestionIndex
}

// rankStudents scores responses to the first upTo questions.
func rankStudents(room domain.Room, scorer *Scorer, upTo int) []domain.ScoreEntry {
	if upTo > len(room.Questions) {
		upTo = len(room.Questions)
	}
	byID := make(map[string]domain.Question, upTo)
	for _, q := range room.Questions[:upTo] {
		byID[q.ID] = q
	}

	entries := make([]domain.ScoreEntry, 0, len(room.Students))
	index := make(map[string]int, len(room.Students))
	for _, s := range room.Students {
		index[s.ID] = len(entries)
		entries = append(entries, domain.ScoreEntry{StudentID: s.ID, Name: s.Name})
	}
	for _, r := range room.Responses {
		i, ok := index[r.StudentID]
		if !ok {
			continue
		}
		q, ok := byID[r.QuestionID]
		if !ok {
			continue
		}
		points := scorer.ScoreResponse(q, r)
		entries[i].Score += points
		if points > 0 {
			entries[i].Correct++
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		si, sj := room.Students[entries[i].StudentID], room.Students[entries[j].StudentID]
		if si.Seq != sj.Seq {
			return si.Seq < sj.Seq
		}
		return si.ID < sj.ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// OptionDistribution counts how the registered students answered one question.
func OptionDistribution(room domain.Room, q domain.Question) domain.OptionStats {
	stats := domain.OptionStats{
		QuestionID:    q.ID,
		CorrectOption: q.CorrectOption,
		Counts:        make([]int, len(q.Options)),
	}
	for _, r := range room.Responses {
		if r.QuestionID != q.ID {
			continue
		}
		if _, ok := room.Students[r.StudentID]; !ok {
			continue
		}
		stats.Total++
		if r.SelectedOption < 0 || r.SelectedOption >= len(stats.Counts) {
			stats.NoAnswer++
			continue
		}
		stats.Counts[r.SelectedOption]++
	}
	return stats
}
