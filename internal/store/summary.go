package store

import "fmt"

// PrintSummary prints the new tapes written and the loaded tapes never
// marked used during this session, matching the reporting the original
// claude_control CLI printed at session close.
func (s *Store) PrintSummary() {
	fmt.Println("===== SUMMARY (controltape) =====")
	for _, p := range s.NewTapePaths() {
		fmt.Printf("new tape: %s\n", p)
	}
	for _, p := range s.UnusedPaths() {
		fmt.Printf("unused tape: %s\n", p)
	}
}
