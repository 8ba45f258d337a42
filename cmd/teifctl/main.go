package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/teif-firma/internal/bootstrap"
	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/infrastructure/postgres"
	"github.com/jhoicas/teif-firma/internal/infrastructure/teif/signer"
	"github.com/jhoicas/teif-firma/pkg/config"
	"github.com/jhoicas/teif-firma/pkg/logger"
	"github.com/jhoicas/teif-firma/pkg/teif"
)

var (
	filePath  string
	pin       string
	batchSize int
	userID    string
	window    time.Duration
	limit     int
)

var rootCmd = &cobra.Command{
	Use:          "teifctl",
	Short:        "Herramienta de operación de la firma TEIF",
	Long:         "Inspección de certificados, verificación de facturas firmadas, rotación de llaves y esquema de base de datos",
	SilenceUsage: true,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Abre un .p12/.pfx y muestra sus metadatos",
	RunE:  inspectCertificate,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verifica la firma XAdES de una factura TEIF",
	RunE:  verifyInvoice,
}

var rekeyCmd = &cobra.Command{
	Use:   "rekey",
	Short: "Vuelve a cifrar con la llave activa los certificados sellados con otra versión",
	RunE:  rekeyCertificates,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Aplica el esquema de base de datos",
	RunE:  migrateSchema,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Consultas de auditoría",
}

var auditFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Fallos recientes de un usuario",
	RunE:  listFailures,
}

func init() {
	inspectCmd.Flags().StringVarP(&filePath, "file", "f", "", "Contenedor PKCS#12 (requerido)")
	inspectCmd.Flags().StringVarP(&pin, "pin", "p", "", "PIN del contenedor (o variable TEIF_PIN)")
	inspectCmd.MarkFlagRequired("file")

	verifyCmd.Flags().StringVarP(&filePath, "file", "f", "", "XML firmado (requerido)")
	verifyCmd.MarkFlagRequired("file")

	rekeyCmd.Flags().IntVar(&batchSize, "batch", 100, "Registros por lote")

	auditFailuresCmd.Flags().StringVarP(&userID, "user", "u", "", "ID del usuario (requerido)")
	auditFailuresCmd.Flags().DurationVar(&window, "since", 24*time.Hour, "Ventana hacia atrás")
	auditFailuresCmd.Flags().IntVar(&limit, "limit", 50, "Máximo de entradas")
	auditFailuresCmd.MarkFlagRequired("user")

	auditCmd.AddCommand(auditFailuresCmd)
	rootCmd.AddCommand(inspectCmd, verifyCmd, rekeyCmd, migrateCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("cargar configuración: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuración inválida: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "warn", Output: os.Stderr})
	return cfg, log, nil
}

func inspectCertificate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("leer %s: %w", filePath, err)
	}
	defer clear(data)
	if pin == "" {
		pin = os.Getenv("TEIF_PIN")
	}

	creds, err := signer.ParseContainer(data, pin)
	if err != nil {
		return fmt.Errorf("contenedor rechazado (%s): %w", domain.CodeOf(err), err)
	}
	defer signer.DestroyKey(creds.PrivateKey)
	md := signer.Metadata(creds)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sujeto:     %s\n", md.Subject)
	fmt.Fprintf(out, "Emisor:     %s\n", md.Issuer)
	fmt.Fprintf(out, "Serie:      %s\n", md.SerialNumber)
	fmt.Fprintf(out, "Llave:      %s\n", md.KeyAlgorithm)
	fmt.Fprintf(out, "Válido de:  %s\n", md.ValidFrom.Format(time.RFC3339))
	fmt.Fprintf(out, "Válido a:   %s\n", md.ValidUntil.Format(time.RFC3339))
	fmt.Fprintf(out, "Estado:     %s\n", entity.InitialStatus(md, time.Now()))
	return nil
}

func verifyInvoice(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("leer %s: %w", filePath, err)
	}
	res, err := signer.NewDigitalSignatureService(teif.RootElement).Verify(string(data))
	if err != nil {
		return fmt.Errorf("firma inválida: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Firma %s válida\n", res.SignatureID)
	fmt.Fprintf(out, "Digest:     %s\n", res.DigestValue)
	fmt.Fprintf(out, "Firmado:    %s\n", res.SigningTime.Format(time.RFC3339))
	fmt.Fprintf(out, "Firmante:   %s\n", res.Certificate.Subject.String())
	return nil
}

func rekeyCertificates(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	n, err := svc.Certificates.Rekey(ctx, batchSize)
	fmt.Fprintf(cmd.OutOrStdout(), "Certificados migrados: %d\n", n)
	return err
}

func migrateSchema(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	if err := postgres.Migrate(ctx, svc.Pool); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Esquema en versión %d\n", postgres.SchemaVersion)
	return nil
}

func listFailures(cmd *cobra.Command, args []string) error {
	if window <= 0 {
		return errors.New("--since debe ser positivo")
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	items, err := svc.Audit.RecentFailures(ctx, userID, window, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "Sin fallos en la ventana indicada")
		return nil
	}
	for _, e := range items {
		fmt.Fprintf(out, "%s  %-6s  %-26s  %s\n",
			e.CreatedAt.Format(time.RFC3339), e.Action, e.ErrorCode, strings.TrimSpace(e.InvoiceID))
	}
	return nil
}
