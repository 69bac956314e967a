package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/consensus"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/features"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Identify the face in an image",
	Long: `Recognise the face in an image against all enrolled profiles.

A rejection (no face, poor quality, no consensus) is a normal outcome: it is
printed with its reason and the command exits successfully. Use --strict to
exit with an error instead.

Examples:
  facegate recognize visitor.jpg
  facegate recognize visitor.jpg --candidates 10 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <identity> <image>",
	Short: "Check that an image shows the claimed identity",
	Long: `Verify a claimed identity. The claim holds only when recognition accepts
the claimed identity as the best match among all enrolled profiles.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
	rootCmd.AddCommand(verifyCmd)

	recognizeCmd.Flags().Int("candidates", 5, "Number of ranked candidates to show")
	recognizeCmd.Flags().Bool("strict", false, "Exit with an error when the face is rejected")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")

	verifyCmd.Flags().Bool("json", false, "Output as JSON")
}

// decisionError reports whether err is a rejection outcome of recognition.
func decisionError(err error) bool {
	return errors.Is(err, facematch.ErrNoFaceDetected) ||
		facematch.IsQualityRejection(err) ||
		errors.Is(err, facematch.ErrFeatureExtraction) ||
		errors.Is(err, facematch.ErrNoEnrolledProfiles) ||
		errors.Is(err, facematch.ErrInsufficientConsensus)
}

// RecognizeOutput is the JSON form of a recognition
type RecognizeOutput struct {
	*facematch.RecognitionResult
	Code string `json:"code,omitempty"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "candidates")
	strict := mustGetBool(cmd, "strict")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	img, err := rt.loadImage(args[0])
	if err != nil {
		return err
	}

	res, err := rt.engine.Recognize(ctx, img)
	if err != nil && !decisionError(err) {
		return err
	}
	if limit >= 0 && len(res.Candidates) > limit {
		res.Candidates = res.Candidates[:limit]
	}

	if jsonOutput {
		if err := outputJSON(RecognizeOutput{RecognitionResult: res, Code: facematch.Code(err)}); err != nil {
			return err
		}
	} else {
		printRecognition(res, err)
	}

	if strict && err != nil {
		return err
	}
	return nil
}

func printRecognition(res *facematch.RecognitionResult, err error) {
	if res.Accepted {
		fmt.Printf("Recognised %s (%s, score %.4f)\n", res.Identity, res.Tier, res.AggregatedScore)
	} else {
		fmt.Printf("Rejected at %s: %s\n", res.Stage, facematch.Code(err))
		fmt.Printf("  %s\n", res.Reason)
	}
	if res.Quality != nil {
		fmt.Printf("Face %v  sharpness %.1f  brightness %.1f  contrast %.1f  quality %.2f\n",
			res.Face, res.Quality.Sharpness, res.Quality.Brightness, res.Quality.Contrast, res.Quality.Score)
	}
	if len(res.Candidates) > 0 {
		fmt.Println("\nCandidates:")
		for i, c := range res.Candidates {
			printVerdict(i+1, c)
		}
	}
}

func printVerdict(rank int, v consensus.Verdict) {
	fmt.Printf("  %2d. %-24s %-10s aggregated %.4f  variance %.4f  consensus %d\n",
		rank, v.Identity(), v.Tier, v.Score.Aggregated, v.Score.Variance, v.Consensus)

	for _, f := range features.AllFamilies {
		if s, ok := v.Score.Families[f]; ok {
			fmt.Printf("        %-9s %.4f\n", f, s.Value)
		}
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	identity := args[0]
	jsonOutput := mustGetBool(cmd, "json")

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	img, err := rt.loadImage(args[1])
	if err != nil {
		return err
	}

	vr, err := rt.engine.Verify(ctx, identity, img)
	if err != nil && (vr.Result == nil || !decisionError(err)) {
		return err
	}

	if jsonOutput {
		return outputJSON(map[string]any{
			"claimed":  vr.Claimed,
			"verified": vr.Verified,
			"code":     facematch.Code(err),
			"claim":    vr.Claim,
			"result":   vr.Result,
		})
	}

	if vr.Verified {
		fmt.Printf("Verified: image shows %s (%s)\n", vr.Claimed, vr.Result.Tier)
	} else {
		fmt.Printf("Not verified: image does not show %s\n", vr.Claimed)
		if vr.Result.Accepted {
			fmt.Printf("  best match is %s (%s)\n", vr.Result.Identity, vr.Result.Tier)
		} else {
			fmt.Printf("  %s\n", vr.Result.Reason)
		}
	}
	if vr.Claim != nil {
		printVerdict(1, *vr.Claim)
	}
	return nil
}
