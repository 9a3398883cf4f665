package workflows

import (
	"context"
	"fmt"
	"io"
	"strings"

	"prio/pipeline/models/constants"
	"prio/pipeline/models/constants/chromosome"
	"prio/pipeline/models/pipeline"
	"prio/pipeline/services/graph"
	"prio/pipeline/utils"
)

/*
	Preprocessing chain executors. Each "if data looks like X, take
	shortcut" decision from the source pipeline is an explicit guard
	evaluated here, around the external tool invocation -- never
	inside it.
*/

func (p *PipelineService) executeReferenceBuild(ctx context.Context, _ map[string]string) (*graph.StageResult, error) {
	build, err := p.ReferenceCache.GetOrBuild(ctx, p.Version)
	if err != nil {
		return nil, err
	}
	return &graph.StageResult{Outputs: map[string]string{
		"reference.sequence": build.SequencePath,
	}}, nil
}

// executeVcfIngest adopts the caller's VCF into the run namespace,
// decompressed, so every later stage sees plain text
func (p *PipelineService) executeVcfIngest(_ context.Context, inputs map[string]string) (*graph.StageResult, error) {
	ref := p.ref("vcf-ingest", "ingested.vcf")

	scanner, closeVcf, err := utils.OpenVcfScanner(inputs["input.vcf"])
	if err != nil {
		return nil, err
	}
	defer closeVcf()

	if _, err := p.Store.Put(ref, func(w io.Writer) error {
		for scanner.Scan() {
			if _, err := fmt.Fprintln(w, scanner.Text()); err != nil {
				return err
			}
		}
		return scanner.Err()
	}); err != nil {
		return nil, err
	}

	return &graph.StageResult{Outputs: map[string]string{
		"ingested.vcf": p.Store.Path(ref),
	}}, nil
}

func (p *PipelineService) executeNormalize(ctx context.Context, inputs map[string]string) (*graph.StageResult, error) {
	toolOutputs, err := p.Adapter.Invoke(ctx, p.Tools.Normalize, map[string]interface{}{
		"vcf":       inputs["ingested.vcf"],
		"reference": inputs["reference.sequence"],
	})
	if err != nil {
		return nil, err
	}

	outputPath, err := p.adoptToolOutput("normalize", toolOutputs, "normalized.vcf", "normalized.vcf")
	if err != nil {
		return nil, err
	}
	return &graph.StageResult{Outputs: map[string]string{"normalized.vcf": outputPath}}, nil
}

// executeGenotypeCall invokes the genotype caller only when the input
// actually carries genotype likelihoods (gVCF-style marker); a VCF of
// final calls passes through unchanged.
func (p *PipelineService) executeGenotypeCall(ctx context.Context, inputs map[string]string) (*graph.StageResult, error) {
	hasMarker, err := hasGvcfMarker(inputs["normalized.vcf"])
	if err != nil {
		return nil, err
	}

	if !hasMarker {
		outputPath, err := p.passThrough("genotype-call", inputs["normalized.vcf"], "genotyped.vcf")
		if err != nil {
			return nil, err
		}
		return &graph.StageResult{
			Outputs: map[string]string{"genotyped.vcf": outputPath},
			Fallback: &pipeline.ContentFallback{
				Stage:  "genotype-call",
				Reason: "input carries no genotype-likelihood marker; passing through unchanged",
			},
		}, nil
	}

	toolOutputs, err := p.Adapter.Invoke(ctx, p.Tools.GenotypeCall, map[string]interface{}{
		"vcf":       inputs["normalized.vcf"],
		"reference": inputs["reference.sequence"],
	})
	if err != nil {
		return nil, err
	}

	outputPath, err := p.adoptToolOutput("genotype-call", toolOutputs, "genotyped.vcf", "genotyped.vcf")
	if err != nil {
		return nil, err
	}
	return &graph.StageResult{Outputs: map[string]string{"genotyped.vcf": outputPath}}, nil
}

// executeChromosomeRestrict applies the caller's contig rename table
// and drops every record outside the canonical chromosome set. This
// is the single point where the allowed set is enforced; scatter
// later asserts (never re-filters) canonical keys.
func (p *PipelineService) executeChromosomeRestrict(_ context.Context, inputs map[string]string) (*graph.StageResult, error) {
	ref := p.ref("chromosome-restrict", "restricted.vcf")

	scanner, closeVcf, err := utils.OpenVcfScanner(inputs["genotyped.vcf"])
	if err != nil {
		return nil, err
	}
	defer closeVcf()

	kept, dropped := 0, 0
	if _, err := p.Store.Put(ref, func(w io.Writer) error {
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "#") {
				if _, err := fmt.Fprintln(w, line); err != nil {
					return err
				}
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			columns := strings.SplitN(line, "\t", 2)
			chrom := columns[0]
			if renamed, ok := p.Renames[chrom]; ok {
				chrom = renamed
			}
			chrom = chromosome.Normalize(chrom)

			// mitochondrial and unplaced contigs are excluded
			// downstream; only the canonical set survives
			if !chromosome.IsCanonicalChromosome(chrom) {
				dropped++
				continue
			}

			rest := ""
			if len(columns) == 2 {
				rest = columns[1]
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\n", chrom, rest); err != nil {
				return err
			}
			kept++
		}
		return scanner.Err()
	}); err != nil {
		return nil, err
	}

	fmt.Printf("Chromosome restriction kept %d record(s), dropped %d\n", kept, dropped)

	return &graph.StageResult{Outputs: map[string]string{
		"restricted.vcf": p.Store.Path(ref),
	}}, nil
}

func (p *PipelineService) executeIdAnnotate(ctx context.Context, inputs map[string]string) (*graph.StageResult, error) {
	toolOutputs, err := p.Adapter.Invoke(ctx, p.Tools.IdAnnotate, map[string]interface{}{
		"vcf": inputs["restricted.vcf"],
	})
	if err != nil {
		return nil, err
	}

	outputPath, err := p.adoptToolOutput("id-annotate", toolOutputs, "annotated.vcf", "ids.vcf")
	if err != nil {
		return nil, err
	}
	return &graph.StageResult{Outputs: map[string]string{"ids.vcf": outputPath}}, nil
}

// executeQualityFilter has two documented fallbacks: an input with no
// FILTER annotations at all is kept as-is without invoking the tool,
// and a filter pass that leaves zero records falls back to the
// unfiltered input rather than producing an empty artifact.
func (p *PipelineService) executeQualityFilter(ctx context.Context, inputs map[string]string) (*graph.StageResult, error) {
	annotated, err := hasFilterAnnotations(inputs["ids.vcf"])
	if err != nil {
		return nil, err
	}
	if !annotated {
		outputPath, err := p.passThrough("quality-filter", inputs["ids.vcf"], "filtered.vcf")
		if err != nil {
			return nil, err
		}
		return &graph.StageResult{
			Outputs: map[string]string{"filtered.vcf": outputPath},
			Fallback: &pipeline.ContentFallback{
				Stage:  "quality-filter",
				Reason: "input has no FILTER annotations; keeping the unfiltered set",
			},
		}, nil
	}

	toolOutputs, err := p.Adapter.Invoke(ctx, p.Tools.QualityFilter, map[string]interface{}{
		"vcf": inputs["ids.vcf"],
	})
	if err != nil {
		return nil, err
	}

	passing, err := countDataRows(toolOutputs["filtered.vcf"])
	if err != nil {
		return nil, err
	}
	if passing == 0 {
		outputPath, err := p.passThrough("quality-filter", inputs["ids.vcf"], "filtered.vcf")
		if err != nil {
			return nil, err
		}
		return &graph.StageResult{
			Outputs: map[string]string{"filtered.vcf": outputPath},
			Fallback: &pipeline.ContentFallback{
				Stage:  "quality-filter",
				Reason: "no variants passed the quality filter; falling back to the unfiltered set",
			},
		}, nil
	}

	outputPath, err := p.adoptToolOutput("quality-filter", toolOutputs, "filtered.vcf", "filtered.vcf")
	if err != nil {
		return nil, err
	}
	return &graph.StageResult{Outputs: map[string]string{"filtered.vcf": outputPath}}, nil
}

// ---- stage guards and shared helpers

// vcfColumn resolves a fixed VCF column name to its data-row index
func vcfColumn(name string) int {
	for i, header := range constants.VcfHeaders {
		if header == name {
			return i
		}
	}
	return -1
}

// adoptToolOutput copies a tool's declared output into the run
// namespace under the artifact's name
func (p *PipelineService) adoptToolOutput(stage string, toolOutputs map[string]string, toolOutputName string, artifactName string) (string, error) {
	ref := p.ref(stage, artifactName)
	if _, err := p.Store.PutFile(ref, toolOutputs[toolOutputName]); err != nil {
		return "", err
	}
	return p.Store.Path(ref), nil
}

// passThrough stores an input unchanged as the stage's output (the
// fallback shape shared by genotype-call and quality-filter)
func (p *PipelineService) passThrough(stage string, inputPath string, artifactName string) (string, error) {
	ref := p.ref(stage, artifactName)
	if _, err := p.Store.PutFile(ref, inputPath); err != nil {
		return "", err
	}
	return p.Store.Path(ref), nil
}

// hasGvcfMarker reports whether a VCF carries genotype likelihoods
// rather than final calls: a ##GVCFBlock header or a <NON_REF>
// symbolic allele
func hasGvcfMarker(path string) (bool, error) {
	scanner, closeVcf, err := utils.OpenVcfScanner(path)
	if err != nil {
		return false, err
	}
	defer closeVcf()

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "##") {
			if strings.HasPrefix(line, "##GVCFBlock") {
				return true, nil
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		columns := strings.Split(line, "\t")
		if alt := vcfColumn("alt"); len(columns) > alt && strings.Contains(columns[alt], "<NON_REF>") {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// hasFilterAnnotations reports whether any record carries a FILTER
// value other than the VCF null token
func hasFilterAnnotations(path string) (bool, error) {
	scanner, closeVcf, err := utils.OpenVcfScanner(path)
	if err != nil {
		return false, err
	}
	defer closeVcf()

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		columns := strings.Split(line, "\t")
		if filter := vcfColumn("filter"); len(columns) > filter && columns[filter] != "." && columns[filter] != "" {
			return true, nil
		}
	}
	return false, scanner.Err()
}

func countDataRows(path string) (int, error) {
	scanner, closeVcf, err := utils.OpenVcfScanner(path)
	if err != nil {
		return 0, err
	}
	defer closeVcf()

	count := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		count++
	}
	return count, scanner.Err()
}
