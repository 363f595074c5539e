package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eyedx/eyedx/internal/domain/diagnosis"
	"github.com/eyedx/eyedx/internal/domain/intake"
)

// withService runs fn against the configured record store. CLI commands log
// to stderr so that stdout stays machine-readable.
func withService(fn func(ctx context.Context, svc *diagnosis.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx := context.Background()
	records, pool, err := openRecords(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}
	return fn(ctx, newDiagnosisService(cfg, records, logger, nil))
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and delete saved diagnosis records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *diagnosis.Service) error {
				items, err := svc.ListRecords(ctx)
				if err != nil {
					return err
				}
				return printRecordTable(cmd.OutOrStdout(), items)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *diagnosis.Service) error {
				rec, err := svc.GetRecord(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	})

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a record by id or by its exact classifier response",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			resultText, _ := cmd.Flags().GetString("result-text")
			if (id == "") == (resultText == "") {
				return fmt.Errorf("exactly one of --id or --result-text is required")
			}
			return withService(func(ctx context.Context, svc *diagnosis.Service) error {
				ok, err := svc.Remove(ctx, &diagnosis.Record{ID: id, RawText: resultText})
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no matching record")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Record deleted.")
				return nil
			})
		},
	}
	deleteCmd.Flags().String("id", "", "Record id")
	deleteCmd.Flags().String("result-text", "", "Raw classifier response stored on the record")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func diagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Classify an intake from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := intakeFromFlags(cmd)
			if err != nil {
				return err
			}
			save, _ := cmd.Flags().GetBool("save")

			return withService(func(ctx context.Context, svc *diagnosis.Service) error {
				res, err := svc.Diagnose(ctx, p)
				if err != nil {
					return err
				}
				if !save {
					return printJSON(cmd.OutOrStdout(), res)
				}
				imageURI, _ := p.Image()
				rec := svc.CreateFromDiagnosis(p, res.RawText, res.Classification, imageURI)
				if err := svc.Persist(ctx, rec); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().String("age", "", "Patient age in years")
	cmd.Flags().String("sex", string(intake.SexMale), "Male or Female")
	cmd.Flags().String("ethnicity", "", "Patient ethnicity")
	cmd.Flags().StringArray("complaint", nil, "Chief complaint (repeatable)")
	cmd.Flags().StringArray("history", nil, "History of present illness entry (repeatable)")
	cmd.Flags().String("image", "", "Image URI returned by the image store")
	cmd.Flags().Bool("save", false, "Save the result as a new record")
	return cmd
}

func intakeFromFlags(cmd *cobra.Command) (intake.PatientIntake, error) {
	age, _ := cmd.Flags().GetString("age")
	sex, _ := cmd.Flags().GetString("sex")
	ethnicity, _ := cmd.Flags().GetString("ethnicity")
	complaints, _ := cmd.Flags().GetStringArray("complaint")
	history, _ := cmd.Flags().GetStringArray("history")
	image, _ := cmd.Flags().GetString("image")

	p := intake.New().WithAge(age).WithSex(intake.Sex(sex)).WithEthnicity(ethnicity).WithImage(image)
	var err error
	for i, c := range complaints {
		if i == 0 {
			if p, err = p.SetComplaint(0, c); err != nil {
				return p, err
			}
			continue
		}
		p = p.AddComplaint(c)
	}
	for i, h := range history {
		if i == 0 {
			if p, err = p.SetHistory(0, h); err != nil {
				return p, err
			}
			continue
		}
		p = p.AddHistory(h)
	}
	return p, p.Validate()
}

func printRecordTable(w io.Writer, items []*diagnosis.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDIAGNOSED\tAI\tDEFINITIVE\tSTATUS")
	for _, r := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Classification.PredictedLabel,
			r.DefinitiveDiagnosis,
			r.Status())
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
