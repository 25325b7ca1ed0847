package ctl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show live scheduler state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			var snap struct {
				JobSlots         uint32 `json:"job_slots"`
				Protected        bool   `json:"protected"`
				WantProtected    bool   `json:"want_protected"`
				WantNonprotected bool   `json:"want_nonprotected"`
				Queued           int    `json:"queued"`
				Waiting          int    `json:"waiting"`
				Slots            []struct {
					Slot     uint32 `json:"slot"`
					AtomID   string `json:"atom_id"`
					Runnable int    `json:"runnable"`
				} `json:"slots"`
			}
			if err := json.Unmarshal(resp.Data, &snap); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			mode := "normal"
			if snap.Protected {
				mode = "protected"
			}
			fmt.Printf("Job slots: %d\n", snap.JobSlots)
			fmt.Printf("Mode:      %s", mode)
			if snap.WantProtected {
				fmt.Printf(" (switch to protected pending)")
			}
			if snap.WantNonprotected {
				fmt.Printf(" (switch to normal pending)")
			}
			fmt.Println()
			fmt.Printf("Queued:    %d\n", snap.Queued)
			fmt.Printf("Waiting:   %d soft atom(s)\n", snap.Waiting)
			for _, slot := range snap.Slots {
				state := "idle"
				if slot.AtomID != "" {
					state = "executing " + slot.AtomID
				}
				fmt.Printf("  slot %d: %s (%d runnable)\n", slot.Slot, state, slot.Runnable)
			}
			return nil
		},
	}
}

func newAtomsCmd() *cobra.Command {
	var connectionID, state string
	cmd := &cobra.Command{
		Use:   "atoms [atom_id]",
		Short: "List traced atoms, or show one atom with its event log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showAtom(args[0])
			}

			path := "/api/v1/atoms"
			var params []string
			if connectionID != "" {
				params = append(params, "connection_id="+connectionID)
			}
			if state != "" {
				params = append(params, "state="+state)
			}
			if len(params) > 0 {
				path += "?" + strings.Join(params, "&")
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list atoms: %w", err)
			}

			var atoms []struct {
				ID           string `json:"id"`
				ConnectionID string `json:"connection_id"`
				State        string `json:"state"`
				Result       string `json:"result"`
				Soft         bool   `json:"soft"`
				Protected    bool   `json:"protected"`
			}
			if err := json.Unmarshal(resp.Data, &atoms); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(atoms) == 0 {
				fmt.Println("No atoms.")
				return nil
			}
			fmt.Printf("%-38s %-20s %-18s %s\n", "ATOM", "STATE", "RESULT", "FLAGS")
			for _, a := range atoms {
				var flags []string
				if a.Soft {
					flags = append(flags, "soft")
				}
				if a.Protected {
					flags = append(flags, "protected")
				}
				fmt.Printf("%-38s %-20s %-18s %s\n", a.ID, a.State, a.Result, strings.Join(flags, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&connectionID, "connection", "", "Filter by connection ID")
	cmd.Flags().StringVar(&state, "state", "", "Filter by atom state")
	return cmd
}

func showAtom(id string) error {
	resp, err := client.Get("/api/v1/atoms/" + id)
	if err != nil {
		return fmt.Errorf("get atom: %w", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(resp.Data, &rec); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	fmt.Printf("Atom %s\n", id)
	for _, key := range []string{"connection_id", "state", "result", "slot", "tail", "submitted_at", "started_at", "completed_at"} {
		if v, ok := rec[key]; ok && v != nil {
			fmt.Printf("  %-13s %v\n", key+":", v)
		}
	}

	resp, err = client.Get("/api/v1/atoms/" + id + "/events")
	if err != nil {
		return fmt.Errorf("get events: %w", err)
	}
	var events []struct {
		State  string `json:"state"`
		Detail string `json:"detail"`
		At     string `json:"at"`
	}
	if err := json.Unmarshal(resp.Data, &events); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if len(events) > 0 {
		fmt.Println("  Events:")
		for _, ev := range events {
			line := "    " + ev.At + "  " + ev.State
			if ev.Detail != "" {
				line += " (" + ev.Detail + ")"
			}
			fmt.Println(line)
		}
	}
	return nil
}

func newConnectCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Create a client connection to submit atoms on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/connections", map[string]string{"label": label})
			if err != nil {
				return fmt.Errorf("create connection: %w", err)
			}
			var conn struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(resp.Data, &conn); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Println(conn.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Connection label")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var (
		connectionID string
		affinity     uint32
		protected    bool
		soft         bool
		deps         []string
		hang         bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a synthetic atom",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"connection_id": connectionID,
				"affinity":      affinity,
				"protected":     protected,
				"soft":          soft,
				"deps":          deps,
				"hang":          hang,
			}
			resp, err := client.Post("/api/v1/atoms", body)
			if err != nil {
				return fmt.Errorf("submit atom: %w", err)
			}
			var atom struct {
				ID           string `json:"id"`
				SemaphoreKey uint64 `json:"semaphore_key"`
			}
			if err := json.Unmarshal(resp.Data, &atom); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Println(atom.ID)
			if soft {
				fmt.Printf("semaphore key: %d\n", atom.SemaphoreKey)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&connectionID, "connection", "", "Owning connection ID (required)")
	cmd.Flags().Uint32Var(&affinity, "affinity", 1, "Slot affinity bitmask")
	cmd.Flags().BoolVar(&protected, "protected", false, "Require protected execution mode")
	cmd.Flags().BoolVar(&soft, "soft", false, "Submit a soft (semaphore) atom")
	cmd.Flags().StringSliceVar(&deps, "dep", nil, "Predecessor atom ID (repeatable)")
	cmd.Flags().BoolVar(&hang, "hang", false, "Make the simulated device hang this atom")
	cmd.MarkFlagRequired("connection")
	return cmd
}

func newSignalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signal <atom_id>",
		Short: "Signal a soft atom's semaphore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Post("/api/v1/atoms/"+args[0]+"/signal", nil); err != nil {
				return fmt.Errorf("signal atom: %w", err)
			}
			fmt.Println("signaled")
			return nil
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <connection_id>",
		Short: "Cancel every atom owned by a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Delete("/api/v1/connections/" + args[0]); err != nil {
				return fmt.Errorf("cancel connection: %w", err)
			}
			fmt.Println("cancelled")
			return nil
		},
	}
}
