package workflows

import (
	"prio/pipeline/services/tools"
)

type (
	// Toolchain holds the fixed command contracts of the external
	// collaborators. Each entry is a command name, an ordered
	// argument template rendered from artifact paths, and the output
	// files the tool must leave behind on a zero exit. The pipeline
	// consumes these tools for their output artifacts only.
	Toolchain struct {
		Normalize        tools.Invocation
		GenotypeCall     tools.Invocation
		IdAnnotate       tools.Invocation
		QualityFilter    tools.Invocation
		Phrank           tools.Invocation
		FrequencyExclude tools.Invocation
		ShardScore       tools.Invocation
		Predict          tools.Invocation
	}
)

func DefaultToolchain(retryAttempts uint64) Toolchain {
	return Toolchain{
		Normalize: tools.Invocation{
			Stage:   "normalize",
			Command: "bcftools",
			ArgsTemplate: []string{
				"norm",
				"--fasta-ref", "{reference}",
				"--multiallelics", "-both",
				"--output", "normalized.vcf",
				"{vcf}",
			},
			Outputs:       []string{"normalized.vcf"},
			RetryAttempts: retryAttempts,
		},
		GenotypeCall: tools.Invocation{
			Stage:   "genotype-call",
			Command: "gatk",
			ArgsTemplate: []string{
				"GenotypeGVCFs",
				"--reference", "{reference}",
				"--variant", "{vcf}",
				"--output", "genotyped.vcf",
			},
			Outputs:       []string{"genotyped.vcf"},
			RetryAttempts: retryAttempts,
		},
		IdAnnotate: tools.Invocation{
			Stage:   "id-annotate",
			Command: "bcftools",
			ArgsTemplate: []string{
				"annotate",
				"--set-id", "%CHROM\\_%POS\\_%REF\\_%FIRST_ALT",
				"--output", "annotated.vcf",
				"{vcf}",
			},
			Outputs:       []string{"annotated.vcf"},
			RetryAttempts: retryAttempts,
		},
		QualityFilter: tools.Invocation{
			Stage:   "quality-filter",
			Command: "bcftools",
			ArgsTemplate: []string{
				"view",
				"--apply-filters", "PASS",
				"--output", "filtered.vcf",
				"{vcf}",
			},
			Outputs:       []string{"filtered.vcf"},
			RetryAttempts: retryAttempts,
		},
		Phrank: tools.Invocation{
			Stage:   "phrank-score",
			Command: "phrank-score",
			ArgsTemplate: []string{
				"--hpo", "{hpo}",
				"--vcf", "{vcf}",
				"--genes-out", "phrank-genes.tsv",
				"--similarity-out", "pheno-similarity.tsv",
			},
			Outputs:       []string{"phrank-genes.tsv", "pheno-similarity.tsv"},
			RetryAttempts: retryAttempts,
		},
		FrequencyExclude: tools.Invocation{
			Stage:   "frequency-exclude",
			Command: "popfreq-filter",
			ArgsTemplate: []string{
				"--max-af", "0.01",
				"--vcf", "{vcf}",
				"--out", "rare.vcf",
			},
			Outputs:       []string{"rare.vcf"},
			RetryAttempts: retryAttempts,
		},
		ShardScore: tools.Invocation{
			Stage:   "scatter-score",
			Command: "variant-score",
			ArgsTemplate: []string{
				"--vcf", "{shard}",
				"--reference", "{reference}",
				"--phrank", "{phrank}",
				"--features-out", "features.tsv",
				"--annotated-out", "annotated.vcf.gz",
			},
			Outputs:       []string{"features.tsv", "annotated.vcf.gz"},
			RetryAttempts: retryAttempts,
		},
		Predict: tools.Invocation{
			Stage:   "predict",
			Command: "prio-predict",
			ArgsTemplate: []string{
				"--features", "{features}",
				"--similarity", "{similarity}",
				"--predictions-out", "predictions.tsv",
				"--confidence-out", "confidence.tsv",
			},
			Outputs:       []string{"predictions.tsv", "confidence.tsv"},
			RetryAttempts: retryAttempts,
		},
	}
}
