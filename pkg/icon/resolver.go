package icon

import (
	"regexp"
	"strings"
)

// Generic identifiers every vocabulary must define.
const (
	FallbackDevice = "Device"
	FallbackCloud  = "Cloud"
)

// minFuzzyLen is the shortest fragment allowed to take part in substring matching.
// Shorter canonical names ("S3", "RDS") only match a whole word of the input, so
// "webserver" does not resolve to EBS.
const minFuzzyLen = 4

// synonym maps a normalized domain term to a canonical identifier. Order matters
// for the containment pass.
type synonym struct {
	term   string
	target string
}

var synonyms = []synonym{
	{"database", "RDS"},
	{"db", "RDS"},
	{"mysql", "RDS"},
	{"postgres", "RDS"},
	{"postgresql", "RDS"},
	{"mariadb", "RDS"},
	{"sqlserver", "RDS"},
	{"oracle", "RDS"},
	{"relational", "RDS"},
	{"mongodb", "DocumentDB"},
	{"mongo", "DocumentDB"},
	{"nosql", "DynamoDB"},
	{"cassandra", "DynamoDB"},
	{"redis", "ElastiCache"},
	{"memcached", "ElastiCache"},
	{"cache", "ElastiCache"},
	{"k8s", "EKS"},
	{"kubernetes", "EKS"},
	{"docker", "ECS"},
	{"container", "ECS"},
	{"serverless", "Lambda"},
	{"function", "Lambda"},
	{"faas", "Lambda"},
	{"lb", "ELB"},
	{"loadbalancer", "ELB"},
	{"balancer", "ELB"},
	{"cdn", "CloudFront"},
	{"dns", "Route53"},
	{"gateway", "APIGateway"},
	{"api", "APIGateway"},
	{"network", "VPC"},
	{"subnet", "VPC"},
	{"queue", "SQS"},
	{"mq", "AmazonMQ"},
	{"rabbitmq", "AmazonMQ"},
	{"kafka", "Kinesis"},
	{"stream", "Kinesis"},
	{"pubsub", "SNS"},
	{"notification", "SNS"},
	{"email", "SNS"},
	{"events", "EventBridge"},
	{"workflow", "StepFunctions"},
	{"bucket", "S3"},
	{"objectstorage", "S3"},
	{"storage", "S3"},
	{"blob", "S3"},
	{"disk", "EBS"},
	{"volume", "EBS"},
	{"filesystem", "EFS"},
	{"nfs", "EFS"},
	{"archive", "Glacier"},
	{"auth", "Cognito"},
	{"identity", "IAM"},
	{"firewall", "WAF"},
	{"secrets", "SecretsManager"},
	{"encryption", "KMS"},
	{"monitoring", "CloudWatch"},
	{"logging", "CloudWatch"},
	{"metrics", "CloudWatch"},
	{"audit", "CloudTrail"},
	{"elasticsearch", "OpenSearch"},
	{"search", "OpenSearch"},
	{"warehouse", "Redshift"},
	{"datalake", "LakeFormation"},
	{"etl", "Glue"},
	{"hadoop", "EMR"},
	{"spark", "EMR"},
	{"dashboard", "QuickSight"},
	{"ml", "SageMaker"},
	{"machinelearning", "SageMaker"},
	{"llm", "Bedrock"},
	{"genai", "Bedrock"},
	{"registry", "ECR"},
	{"cicd", "CodePipeline"},
	{"pipeline", "CodePipeline"},
	{"server", "EC2"},
	{"webserver", "EC2"},
	{"vm", "EC2"},
	{"instance", "EC2"},
	{"compute", "EC2"},
	{"backend", "EC2"},
	{"app", "EC2"},
}

// deviceHints mark names that describe an end user or a client device.
var deviceHints = []string{
	"user", "client", "browser", "mobile", "phone", "device", "laptop",
	"desktop", "customer", "person", "people", "tablet", "iot", "frontend",
}

// nodePattern captures the icon name of a node declaration.
var nodePattern = regexp.MustCompile(`(Node:[ \t]*)([^\s\[]+)`)

var normalizer = strings.NewReplacer("-", "", "_", "", " ", "")

var wordSeparators = regexp.MustCompile(`[-_\s]+`)

func normalize(s string) string {
	return strings.ToLower(normalizer.Replace(strings.TrimSpace(s)))
}

// Resolver maps free-form service names to canonical identifiers.
//
// Substring matching takes the first hit in vocabulary order, so reordering the
// vocabulary file can change which identifier a fuzzy name resolves to.
type Resolver struct {
	vocab      *Vocabulary
	normalized []string // normalized canonical names, parallel to vocab.ordered
}

// NewResolver creates a resolver over vocab.
func NewResolver(vocab *Vocabulary) *Resolver {
	r := &Resolver{vocab: vocab, normalized: make([]string, len(vocab.ordered))}
	for i, name := range vocab.ordered {
		r.normalized[i] = normalize(name)
	}
	return r
}

// Vocabulary returns the underlying vocabulary.
func (r *Resolver) Vocabulary() *Vocabulary {
	return r.vocab
}

// Resolve always returns an identifier that exists in the vocabulary.
func (r *Resolver) Resolve(raw string) string {
	name := strings.TrimSpace(raw)

	// 1. exact, case-insensitive
	if canonical, ok := r.vocab.Lookup(name); ok {
		return canonical
	}

	norm := normalize(name)
	if norm == "" {
		return FallbackCloud
	}

	// 2. substring containment in vocabulary order
	if canonical, ok := r.matchSubstring(norm, words(name)); ok {
		return canonical
	}

	// 3. synonyms whose target exists
	if canonical, ok := r.matchSynonym(norm); ok {
		return canonical
	}

	// 4. heuristic fallback
	for _, hint := range deviceHints {
		if strings.Contains(norm, hint) {
			return FallbackDevice
		}
	}
	return FallbackCloud
}

func (r *Resolver) matchSubstring(norm string, tokens map[string]bool) (string, bool) {
	for i, candidate := range r.normalized {
		if candidate == norm {
			return r.vocab.ordered[i], true
		}
		if len(norm) >= minFuzzyLen && strings.Contains(candidate, norm) {
			return r.vocab.ordered[i], true
		}
		if strings.Contains(norm, candidate) && (len(candidate) >= minFuzzyLen || tokens[candidate]) {
			return r.vocab.ordered[i], true
		}
	}
	return "", false
}

func words(name string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordSeparators.Split(strings.ToLower(name), -1) {
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func (r *Resolver) matchSynonym(norm string) (string, bool) {
	for _, s := range synonyms {
		if s.term != norm {
			continue
		}
		if r.vocab.Contains(s.target) {
			return s.target, true
		}
	}
	for _, s := range synonyms {
		if len(s.term) < 4 || !strings.Contains(norm, s.term) {
			continue
		}
		if r.vocab.Contains(s.target) {
			return s.target, true
		}
	}
	return "", false
}

// RewriteDSL replaces the icon name of every "Node: <name>" declaration with its
// resolved identifier and leaves everything else untouched. It is idempotent.
func (r *Resolver) RewriteDSL(text string) string {
	return nodePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := nodePattern.FindStringSubmatch(match)
		return parts[1] + r.Resolve(parts[2])
	})
}

// NodeNames returns the icon names referenced by node declarations in text.
func NodeNames(text string) []string {
	matches := nodePattern.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[2])
	}
	return names
}
