package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/campuschat/internal/store/sqlite"
)

var (
	enrollUser   string
	enrollCourse string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Record a course enrollment used by enrollment authorization mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		if err := st.Enroll(cmd.Context(), enrollUser, enrollCourse); err != nil {
			return err
		}
		logger.Info().Str("user_id", enrollUser).Str("course_id", enrollCourse).Msg("enrollment recorded")
		return nil
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollUser, "user", "u", "", "user id")
	enrollCmd.Flags().StringVar(&enrollCourse, "course", "", "course id")
	_ = enrollCmd.MarkFlagRequired("user")
	_ = enrollCmd.MarkFlagRequired("course")
	rootCmd.AddCommand(enrollCmd)
}
