package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pantry-assistant/internal/domain"
)

const (
	msgThrottled    = "Estás enviando muchos mensajes seguidos. Espera un minuto y vuelve a intentarlo."
	msgConnectivity = "Ahora mismo no puedo acceder a tu cuenta. Inténtalo de nuevo en unos minutos."
	msgApology      = "Lo siento, algo ha fallado al procesar tu mensaje. Inténtalo de nuevo."

	msgHelp = "Puedo ayudarte con tu despensa:\n" +
		"• Añadir: \"Tengo leche que caduca el viernes\"\n" +
		"• Ver: \"¿Qué tengo?\"\n" +
		"• Urgentes: \"¿Qué caduca pronto?\"\n" +
		"• Eliminar: \"Quita el yogur\"\n" +
		"• Recetas: \"¿Qué cocino hoy?\"\n" +
		"• Estadísticas: \"¿Cuánto desperdicio?\"\n" +
		"• Uso y Premium: \"mi uso\", \"premium\""

	msgAskRemoveWhich = "¿Qué producto quieres eliminar? Por ejemplo: \"quita la leche\"."
	msgRecipeNoStock  = "No tienes productos en tu despensa. Añade algunos y te propongo una receta."
	msgRecipeDeclined = "¡De acuerdo! Si cambias de idea, pídeme otra receta cuando quieras."
	msgRecipeAskMore  = "¿Quieres la receta detallada con pasos y cantidades? Responde sí o no."
	msgUpsell         = "Estás cerca de tu límite de uso. Con Premium tendrás mucho más margen. Escribe \"premium\" para saber más."
	msgExpectedFormat = "Escríbelo así: \"<producto> caduca el <fecha>\", por ejemplo \"yogur caduca el 20/10\"."
)

func greetingText(v Variant) string {
	if v == VariantPremiumActive {
		return "¡Hola de nuevo! Tu Premium está activo. ¿Qué hacemos hoy con tu despensa?"
	}
	return "¡Hola! Soy tu asistente de despensa. Dime qué compras y cuándo caduca y te aviso antes de que se eche a perder. Escribe \"ayuda\" para ver qué puedo hacer."
}

func expiryLabel(now, expiresAt time.Time) string {
	switch UrgencyBucket(now, expiresAt) {
	case BucketToday:
		if now.After(expiresAt) && now.Sub(expiresAt) >= 24*time.Hour {
			return "caducado el " + expiresAt.Format("02/01")
		}
		return "caduca hoy"
	case BucketTomorrow:
		return "caduca mañana"
	default:
		return "caduca el " + expiresAt.Format("02/01")
	}
}

func productLabel(p domain.Product) string {
	if p.Quantity <= 0 {
		return p.Name
	}
	q := strconv.FormatFloat(p.Quantity, 'f', -1, 64)
	if p.Unit == "" {
		return fmt.Sprintf("%s (%s)", p.Name, q)
	}
	return fmt.Sprintf("%s (%s %s)", p.Name, q, p.Unit)
}

func addedText(now time.Time, p domain.Product) string {
	return fmt.Sprintf("✅ He añadido %s, %s.", productLabel(p), expiryLabel(now, p.ExpiresAt))
}

func clarifyText() string {
	return "No he podido identificar el producto o su fecha de caducidad. " + msgExpectedFormat
}

func stillUnreadableText() string {
	return "Sigo sin entender el producto. " + msgExpectedFormat
}

func inventoryText(now time.Time, v Variant, products []domain.Product) string {
	if v == VariantEmpty {
		return "Tu despensa está vacía. Dime qué tienes, por ejemplo: \"Tengo leche que caduca el viernes\"."
	}
	var b strings.Builder
	b.WriteString("Esto es lo que tienes:\n")
	for _, p := range products {
		fmt.Fprintf(&b, "• %s, %s\n", productLabel(p), expiryLabel(now, p.ExpiresAt))
	}
	switch v {
	case VariantHasUrgent:
		b.WriteString("⚠️ Tienes productos que caducan ya. Escribe \"receta\" y te propongo cómo usarlos.")
	case VariantHasUpcoming:
		b.WriteString("Algunos productos caducan esta semana.")
	default:
		b.WriteString("Todo está fresco. 👌")
	}
	return b.String()
}

func urgentText(now time.Time, products []domain.Product) string {
	var b strings.Builder
	for _, p := range products {
		if urgent(UrgencyBucket(now, p.ExpiresAt)) {
			fmt.Fprintf(&b, "• %s, %s\n", productLabel(p), expiryLabel(now, p.ExpiresAt))
		}
	}
	if b.Len() == 0 {
		if len(products) == 0 {
			return "Tu despensa está vacía, no hay nada a punto de caducar."
		}
		return "Nada caduca hoy ni mañana. 👌"
	}
	return "Úsalos cuanto antes:\n" + strings.TrimRight(b.String(), "\n")
}

func notFoundText(name string, sample []string) string {
	msg := fmt.Sprintf("No encuentro \"%s\" en tu despensa.", name)
	if len(sample) == 0 {
		return msg + " Ahora mismo está vacía."
	}
	return msg + " Tienes: " + strings.Join(sample, ", ") + "."
}

func candidatesText(name string, cands []domain.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tengo varios productos que coinciden con \"%s\":\n", name)
	for i, c := range cands {
		fmt.Fprintf(&b, "%d. %s", i+1, c.DisplayName)
		if c.Meta != "" {
			fmt.Fprintf(&b, " (%s)", c.Meta)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Responde con el número del que quieres eliminar (1 a %d).", len(cands))
	return b.String()
}

func invalidChoiceText(k int) string {
	return fmt.Sprintf("Esa opción no es válida: tenía que ser un número del 1 a %d. Si quieres eliminar un producto, vuelve a pedírmelo.", k)
}

func removedText(name string, wasted bool) string {
	if wasted {
		return fmt.Sprintf("🗑️ He eliminado %s. Caducó antes de usarse; la próxima vez te aviso antes.", name)
	}
	return fmt.Sprintf("✅ He eliminado %s de tu despensa.", name)
}

func alreadyGoneText(name string) string {
	return fmt.Sprintf("%s ya no estaba en tu despensa.", name)
}

func recipeText(quick string) string {
	return quick + "\n\n" + msgRecipeAskMore
}

func premiumText(v Variant, ent domain.Entitlement) string {
	if v == VariantPremiumActive {
		if ent.ExpiresAt.IsZero() {
			return "⭐ Tu Premium está activo: recetas detalladas y límites ampliados."
		}
		return fmt.Sprintf("⭐ Tu Premium está activo hasta el %s: recetas detalladas y límites ampliados.", ent.ExpiresAt.Format("02/01/2006"))
	}
	return "⭐ Con Premium tienes recetas detalladas paso a paso, más productos y más recetas al día. Actívalo desde la app en Ajustes > Premium."
}

var (
	classLabels = map[domain.ActionClass]string{
		domain.ActionAddProduct:    "Productos añadidos",
		domain.ActionRemoveProduct: "Productos eliminados",
		domain.ActionRecipe:        "Recetas",
	}
	windowLabels = map[domain.Window]string{
		domain.WindowDaily:   "hoy",
		domain.WindowWeekly:  "esta semana",
		domain.WindowMonthly: "este mes",
	}
)

func usageText(windows []domain.UsageWindow) string {
	if len(windows) == 0 {
		return "No tienes límites de uso activos. 🎉"
	}
	var b strings.Builder
	b.WriteString("Tu uso:\n")
	for _, w := range windows {
		fmt.Fprintf(&b, "• %s %s: %d de %d\n", classLabels[w.Class], windowLabels[w.Window], w.Used, w.Limit)
	}
	return strings.TrimRight(b.String(), "\n")
}

func statsText(trend domain.WeeklyTrend, waste domain.WasteEstimate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Esta semana has añadido %d productos (la anterior, %d).\n", trend.ThisWeek, trend.LastWeek)
	if waste.Removed+waste.ExpiredInStock == 0 {
		b.WriteString("Aún no hay datos de desperdicio del último mes.")
		return b.String()
	}
	fmt.Fprintf(&b, "En los últimos 30 días se ha desperdiciado un %d%% de lo que has gastado", waste.Percent)
	if waste.ExpiredInStock > 0 {
		fmt.Fprintf(&b, ", y tienes %d producto(s) ya caducado(s) en la despensa", waste.ExpiredInStock)
	}
	b.WriteString(".")
	return b.String()
}
